package preflight

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"pinetree/internal/database"
)

// MinJWTSecretLength is the shortest HS256 secret accepted outside development
const MinJWTSecretLength = 32

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Options carries the settings the checks validate
type Options struct {
	UploadDir     string
	JWTSecret     string
	EncryptionKey string
	Production    bool
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	db   *database.DB
	opts Options
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, opts Options) *Checker {
	return &Checker{
		db:   db,
		opts: opts,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
		c.checkDatabaseSchema(),
		c.checkUploadDir(),
		c.checkJWTSecret(),
		c.checkEncryptionKey(),
	}

	report(results)
	return results
}

// QuickCheck runs minimal checks for fast startup
func (c *Checker) QuickCheck() []CheckResult {
	log.Println("⚡ Running quick pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
	}

	report(results)
	return results
}

func report(results []CheckResult) {
	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkDatabaseConnection verifies database connectivity
func (c *Checker) checkDatabaseConnection() CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  "fail",
			Message: "Cannot connect to database",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Database Connection",
		Status:  "pass",
		Message: "Database connection successful",
	}
}

// checkDatabaseSchema verifies all required tables exist
func (c *Checker) checkDatabaseSchema() CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range database.Tables {
		ok, err := c.db.TableExists(ctx, table)
		if err != nil || !ok {
			return CheckResult{
				Name:    "Database Schema",
				Status:  "fail",
				Message: fmt.Sprintf("Required table '%s' not found", table),
				Error:   err,
			}
		}
	}

	return CheckResult{
		Name:    "Database Schema",
		Status:  "pass",
		Message: fmt.Sprintf("All %d required tables exist", len(database.Tables)),
	}
}

// checkUploadDir creates the upload directory if needed and checks that it
// is writable
func (c *Checker) checkUploadDir() CheckResult {
	if err := os.MkdirAll(c.opts.UploadDir, 0o700); err != nil {
		return CheckResult{
			Name:    "Upload Directory",
			Status:  "fail",
			Message: fmt.Sprintf("Cannot create %s", c.opts.UploadDir),
			Error:   err,
		}
	}

	scratch, err := os.CreateTemp(c.opts.UploadDir, ".preflight-*")
	if err != nil {
		return CheckResult{
			Name:    "Upload Directory",
			Status:  "fail",
			Message: fmt.Sprintf("%s is not writable", c.opts.UploadDir),
			Error:   err,
		}
	}
	name := scratch.Name()
	scratch.Close()
	os.Remove(name)

	abs, _ := filepath.Abs(c.opts.UploadDir)
	return CheckResult{
		Name:    "Upload Directory",
		Status:  "pass",
		Message: fmt.Sprintf("%s is writable", abs),
	}
}

// checkJWTSecret fails in production when the secret is missing or short
func (c *Checker) checkJWTSecret() CheckResult {
	if len(c.opts.JWTSecret) >= MinJWTSecretLength {
		return CheckResult{
			Name:    "JWT Secret",
			Status:  "pass",
			Message: "JWT secret configured",
		}
	}

	status := "warning"
	if c.opts.Production {
		status = "fail"
	}
	if c.opts.JWTSecret == "" {
		return CheckResult{
			Name:    "JWT Secret",
			Status:  status,
			Message: "JWT_SECRET not set (authentication falls back to development mode)",
		}
	}
	return CheckResult{
		Name:    "JWT Secret",
		Status:  status,
		Message: fmt.Sprintf("JWT_SECRET shorter than %d characters", MinJWTSecretLength),
	}
}

// checkEncryptionKey warns when private notes would be stored in plaintext
func (c *Checker) checkEncryptionKey() CheckResult {
	if c.opts.EncryptionKey == "" {
		return CheckResult{
			Name:    "Encryption Key",
			Status:  "warning",
			Message: "ENCRYPTION_MASTER_KEY not set (private notes stored unencrypted)",
		}
	}

	return CheckResult{
		Name:    "Encryption Key",
		Status:  "pass",
		Message: "Encryption at rest enabled",
	}
}
