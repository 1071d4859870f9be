package database

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_name VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL DEFAULT 'user',
		tier VARCHAR(32) NOT NULL DEFAULT 'free',
		refresh_token_version INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		last_login_at DATETIME(6) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS pinecones (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		guid CHAR(36) NOT NULL UNIQUE,
		title VARCHAR(512) NOT NULL DEFAULT '',
		content LONGTEXT NOT NULL,
		group_guid CHAR(36) NOT NULL,
		parent_guid CHAR(36) NULL,
		sort_order INT NOT NULL DEFAULT 0,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		user_name VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		deleted_at DATETIME(6) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE INDEX idx_pinecones_parent ON pinecones (parent_guid, sort_order)`,
	`CREATE INDEX idx_pinecones_group ON pinecones (group_guid)`,
	`CREATE INDEX idx_pinecones_owner ON pinecones (user_name, parent_guid)`,
	`CREATE TABLE IF NOT EXISTS images (
		id CHAR(36) PRIMARY KEY,
		pinecone_guid CHAR(36) NOT NULL,
		user_name VARCHAR(255) NOT NULL,
		filename VARCHAR(255) NOT NULL,
		mime_type VARCHAR(64) NOT NULL,
		size BIGINT NOT NULL,
		hash CHAR(64) NOT NULL,
		storage_path VARCHAR(1024) NOT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE INDEX idx_images_pinecone ON images (pinecone_guid)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_name TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		tier TEXT NOT NULL DEFAULT 'free',
		refresh_token_version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_login_at DATETIME NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pinecones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		group_guid TEXT NOT NULL,
		parent_guid TEXT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_public BOOLEAN NOT NULL DEFAULT 0,
		user_name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pinecones_parent ON pinecones (parent_guid, sort_order)`,
	`CREATE INDEX IF NOT EXISTS idx_pinecones_group ON pinecones (group_guid)`,
	`CREATE INDEX IF NOT EXISTS idx_pinecones_owner ON pinecones (user_name, parent_guid)`,
	`CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		pinecone_guid TEXT NOT NULL,
		user_name TEXT NOT NULL,
		filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		hash TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_images_pinecone ON images (pinecone_guid)`,
}
