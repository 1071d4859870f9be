package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinetree/internal/database"
	"pinetree/internal/middleware"
	"pinetree/internal/models"
	"pinetree/internal/services"
	"pinetree/internal/tree"
	"pinetree/pkg/auth"
)

const testPassword = "correct-horse-42"

type testEnv struct {
	app       *fiber.App
	db        *database.DB
	jwtAuth   *auth.LocalJWTAuth
	users     *services.UserService
	pinecones *services.PineconeService
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	jwtAuth, err := auth.NewLocalJWTAuth(strings.Repeat("k", 32), 0, 0)
	require.NoError(t, err)

	users := services.NewUserService(db)
	tiers := services.NewTierService(users, nil)
	audit := services.NewAuditService(nil)
	pinecones := services.NewPineconeService(services.NewPineconeStore(db), tiers, nil, audit, services.NewRenderService())
	sessions := services.NewEditSessionService(pinecones, tiers, 0)
	limiter := services.NewUsageLimiterService(tiers, nil)
	images := services.NewImageService(db, pinecones, tiers, limiter, audit, filepath.Join(t.TempDir(), "uploads"))

	authHandler := NewLocalAuthHandler(jwtAuth, users, tiers)
	treeHandler := NewTreeHandler(pinecones)
	sessionHandler := NewSessionHandler(sessions)
	imageHandler := NewImageHandler(images)
	requireAuth := middleware.LocalAuthMiddleware(jwtAuth)

	app := fiber.New()
	app.Get("/health", NewHealthHandler(db, nil, nil).Handle)
	app.Get("/public/:guid", NewPublicHandler(pinecones).Render)

	api := app.Group("/api")
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/refresh", authHandler.RefreshToken)
	authRoutes.Post("/logout", requireAuth, authHandler.Logout)
	authRoutes.Get("/me", requireAuth, authHandler.GetCurrentUser)

	trees := api.Group("/trees", requireAuth)
	trees.Get("/", treeHandler.List)
	trees.Post("/", treeHandler.Create)
	trees.Get("/:rootId", treeHandler.Get)
	trees.Put("/:rootId", treeHandler.Save)
	trees.Delete("/:rootId", treeHandler.Trash)
	trees.Post("/:rootId/restore", treeHandler.Restore)
	trees.Post("/:rootId/session", sessionHandler.Open)
	trees.Post("/:rootId/session/ops", sessionHandler.Apply)
	trees.Post("/:rootId/session/commit", sessionHandler.Commit)
	trees.Delete("/:rootId/session", sessionHandler.Discard)
	api.Get("/trash", requireAuth, treeHandler.ListTrash)

	nodes := api.Group("/pinecones", requireAuth)
	nodes.Delete("/:guid", treeHandler.DeleteNode)
	nodes.Put("/:guid/visibility", treeHandler.SetVisibility)
	nodes.Post("/:guid/images", imageHandler.Upload)

	api.Get("/images/:id", middleware.OptionalLocalAuthMiddleware(jwtAuth), imageHandler.Get)
	api.Delete("/images/:id", requireAuth, imageHandler.Delete)

	return &testEnv{app: app, db: db, jwtAuth: jwtAuth, users: users, pinecones: pinecones}
}

// tokenFor creates an account directly and returns an access token for it.
func (e *testEnv) tokenFor(t *testing.T, userName string) string {
	t.Helper()
	hash, err := e.jwtAuth.HashPassword(testPassword)
	require.NoError(t, err)
	user, err := e.users.CreateUser(context.Background(), userName, hash, "user")
	require.NoError(t, err)
	access, _, err := e.jwtAuth.GenerateTokens(user.UserName, user.Role, user.RefreshTokenVersion)
	require.NoError(t, err)
	return access
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) createTree(t *testing.T, token, content string) *models.Pinecone {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/trees", token, models.CreateTreeRequest{Content: content})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	root := decode[models.Pinecone](t, resp)
	return &root
}

func strPtr(s string) *string { return &s }

func TestAuth_RegisterLoginRefreshLogout(t *testing.T) {
	env := setupTestApp(t)

	resp := env.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: "Ada@Example.com", Password: testPassword,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	registered := decode[AuthResponse](t, resp)
	assert.Equal(t, "ada@example.com", registered.User.UserName)
	assert.Equal(t, "admin", registered.User.Role, "first account becomes admin")
	assert.NotEmpty(t, registered.AccessToken)

	t.Run("duplicate registration", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
			Email: "ada@example.com", Password: testPassword,
		})
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})

	t.Run("weak password", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
			Email: "weak@example.com", Password: "onlyletters",
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("second account is a plain user", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
			Email: "grace@example.com", Password: testPassword,
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "user", decode[AuthResponse](t, resp).User.Role)
	})

	t.Run("login", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
			Email: "ada@example.com", Password: "wrong-password-1",
		})
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		resp = env.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
			Email: "ada@example.com", Password: testPassword,
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("me", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/auth/me", registered.AccessToken, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		body := decode[map[string]json.RawMessage](t, resp)
		assert.Contains(t, string(body["user"]), "ada@example.com")
		assert.Contains(t, string(body["limits"]), "max_depth")

		resp = env.do(t, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("refresh then logout revokes", func(t *testing.T) {
		refresh := models.RefreshRequest{RefreshToken: registered.RefreshToken}
		resp := env.do(t, http.MethodPost, "/api/auth/refresh", "", refresh)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodPost, "/api/auth/logout", registered.AccessToken, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodPost, "/api/auth/refresh", "", refresh)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestTrees_CreateGetSave(t *testing.T) {
	env := setupTestApp(t)
	token := env.tokenFor(t, "ada@example.com")

	root := env.createTree(t, token, "# Reading list\nbooks")
	assert.Equal(t, "Reading list", root.Title)

	resp := env.do(t, http.MethodGet, "/api/trees", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	list := decode[map[string][]models.TreeSummary](t, resp)
	require.Len(t, list["trees"], 1)
	assert.Equal(t, root.Guid, list["trees"][0].Guid)

	rootID := root.Guid.String()
	childID := uuid.NewString()
	save := models.SaveTreeRequest{
		RootID:               rootID,
		HasStructuralChanges: true,
		Nodes: []models.NodeDescriptor{
			{Guid: rootID, Title: "Reading list", Content: "books"},
			{Guid: childID, Content: "## Dune\nsand", ParentGuid: strPtr(rootID)},
		},
	}
	resp = env.do(t, http.MethodPut, "/api/trees/"+rootID, token, save)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decode[services.SaveResult](t, resp)
	assert.Equal(t, 1, result.Inserted)

	resp = env.do(t, http.MethodGet, "/api/trees/"+rootID, token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	view := decode[tree.View](t, resp)
	require.Len(t, view.Children, 1)
	assert.Equal(t, childID, view.Children[0].Guid.String())
	assert.Equal(t, "Dune", view.Children[0].Title)

	t.Run("body and url root must agree", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/trees/"+uuid.NewString(), token, save)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("root guid case does not matter", func(t *testing.T) {
		same := save
		same.HasStructuralChanges = false
		resp := env.do(t, http.MethodPut, "/api/trees/"+strings.ToUpper(rootID), token, same)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("invalid body", func(t *testing.T) {
		bad := save
		bad.Nodes = nil
		resp := env.do(t, http.MethodPut, "/api/trees/"+rootID, token, bad)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("other users are refused", func(t *testing.T) {
		other := env.tokenFor(t, "mallory@example.com")
		resp := env.do(t, http.MethodPut, "/api/trees/"+rootID, other, save)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("missing tree", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/trees/"+uuid.NewString(), token, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad guid", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/trees/not-a-guid", token, nil)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("anonymous", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/trees", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestTrees_TrashRestoreAndDeleteNode(t *testing.T) {
	env := setupTestApp(t)
	token := env.tokenFor(t, "ada@example.com")
	root := env.createTree(t, token, "Projects")
	rootID := root.Guid.String()

	childID := uuid.NewString()
	resp := env.do(t, http.MethodPut, "/api/trees/"+rootID, token, models.SaveTreeRequest{
		RootID:               rootID,
		HasStructuralChanges: true,
		Nodes: []models.NodeDescriptor{
			{Guid: rootID, Content: "Projects"},
			{Guid: childID, Content: "Shed", ParentGuid: strPtr(rootID)},
		},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/pinecones/"+rootID, token, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "roots are trashed, not deleted")

	resp = env.do(t, http.MethodDelete, "/api/pinecones/"+childID, token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, rootID, decode[map[string]string](t, resp)["parentGuid"])

	resp = env.do(t, http.MethodDelete, "/api/trees/"+rootID, token, nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/trees/"+rootID, token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/trash", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode[map[string][]models.TreeSummary](t, resp)["trees"], 1)

	resp = env.do(t, http.MethodPost, "/api/trees/"+rootID+"/restore", token, nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/trees/"+rootID+"/restore", token, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "tree is no longer trashed")

	resp = env.do(t, http.MethodGet, "/api/trees/"+rootID, token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSession_EditAndCommit(t *testing.T) {
	env := setupTestApp(t)
	token := env.tokenFor(t, "ada@example.com")
	root := env.createTree(t, token, "Journal")
	base := "/api/trees/" + root.Guid.String() + "/session"

	resp := env.do(t, http.MethodPost, base, token, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/ops", token, services.EditOp{
		Op: services.OpAddChild, Guid: root.Guid.String(), Content: strPtr("# Monday\nrain"),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	added := decode[services.EditResult](t, resp)
	assert.True(t, added.Changed)
	require.Len(t, added.Tree.Children, 1)
	assert.Equal(t, "Monday", added.Tree.Children[0].Title)

	t.Run("unknown op", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, base+"/ops", token, map[string]string{
			"op": "explode", "guid": root.Guid.String(),
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("deleting the root is refused", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, base+"/ops", token, services.EditOp{
			Op: services.OpDelete, Guid: root.Guid.String(),
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	resp = env.do(t, http.MethodPost, base+"/commit", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	commit := decode[services.CommitResult](t, resp)
	assert.True(t, commit.HasStructuralChanges)
	require.NotNil(t, commit.Save)
	assert.Equal(t, 1, commit.Save.Inserted)

	resp = env.do(t, http.MethodGet, "/api/trees/"+root.Guid.String(), token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode[tree.View](t, resp).Children, 1)

	resp = env.do(t, http.MethodDelete, base, token, nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/commit", token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "discarded session is gone")
}

func TestPublic_Render(t *testing.T) {
	env := setupTestApp(t)
	token := env.tokenFor(t, "ada@example.com")
	root := env.createTree(t, token, "# Recipes\n**bread** and [jam](https://example.com)")
	guid := root.Guid.String()

	resp := env.do(t, http.MethodGet, "/public/"+guid, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "private notes are hidden")

	resp = env.do(t, http.MethodPut, "/api/pinecones/"+guid+"/visibility", token, models.VisibilityRequest{IsPublic: true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Pinecone](t, resp).IsPublic)

	resp = env.do(t, http.MethodGet, "/public/"+guid, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<strong>bread</strong>")
	assert.Contains(t, string(page), `rel="noopener noreferrer"`)

	resp = env.do(t, http.MethodGet, "/public/not-a-guid", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, token, guid string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "pixel.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pinecones/"+guid+"/images", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestImages_UploadServeDelete(t *testing.T) {
	env := setupTestApp(t)
	token := env.tokenFor(t, "ada@example.com")
	other := env.tokenFor(t, "mallory@example.com")
	root := env.createTree(t, token, "Album")
	data := pngBytes(t)

	resp := env.upload(t, other, root.Guid.String(), data)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = env.upload(t, token, root.Guid.String(), []byte("plain text, not an image"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.upload(t, token, root.Guid.String(), data)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	uploaded := decode[models.ImageUploadResponse](t, resp)
	assert.Equal(t, "image/png", uploaded.MimeType)
	assert.Equal(t, int64(len(data)), uploaded.Size)

	resp = env.do(t, http.MethodGet, uploaded.URL, token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, data, served)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = env.do(t, http.MethodGet, uploaded.URL, "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "private note images are hidden from anonymous readers")

	resp = env.do(t, http.MethodDelete, uploaded.URL, other, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, uploaded.URL, token, nil)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, uploaded.URL, token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := setupTestApp(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]any](t, resp)["status"])

	env.db.Close()
	resp = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
