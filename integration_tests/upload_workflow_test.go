package integration_tests

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apiBinaryPath      = "./api_binary"
	rendererBinaryPath = "./renderer_binary"
	apiPort            = "18080"
	rendererPort       = "18081"
	apiBaseURL         = "http://127.0.0.1:" + apiPort
	rendererBaseURL    = "http://127.0.0.1:" + rendererPort
	testAdminSecret    = "integration-admin-secret"
	testAPIKey         = "integration-api-key"
	testRateLimit      = 6
	readinessTimeout   = 15 * time.Second
	readinessPoll      = 200 * time.Millisecond
)

var (
	httpClient = &http.Client{
		Timeout: 10 * time.Second,
		// Renderer redirects are asserted, not followed.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	workDir          string
	uploadDir        string
	rateLimitDir     string
	logDir           string
	profileStorePath string
)

const initialProfiles = `{"profiles": {"Ab3dE": {"nickname": "Ada", "subtitle": "Engines", "dpUrl": "https://img.example.com/ada.png"}}}`

// --- Test Main: Setup & Teardown ---

func TestMain(m *testing.M) {
	log.Println("INFO: Starting integration test setup...")

	var err error
	workDir, err = os.MkdirTemp("", "vlagserver_integration_")
	if err != nil {
		log.Fatalf("FATAL: Failed to create work directory: %v", err)
	}
	uploadDir = filepath.Join(workDir, "uploads")
	rateLimitDir = filepath.Join(workDir, "cache")
	logDir = filepath.Join(workDir, "logs")
	profileStorePath = filepath.Join(workDir, "profiles.json")
	if err := os.WriteFile(profileStorePath, []byte(initialProfiles), 0644); err != nil {
		log.Fatalf("FATAL: Failed to write profile store: %v", err)
	}

	// --- 1. Build both binaries ---
	build := func(output, pkg string) {
		cmd := exec.Command("go", "build", "-o", output, pkg)
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Fatalf("FATAL: Failed to build %s: %v\nOutput:\n%s", pkg, err, string(out))
		}
	}
	build(apiBinaryPath, "..")
	build(rendererBinaryPath, "../cmd/metarender")

	// --- 2. Start both servers ---
	env := append(os.Environ(),
		"VLAG_LISTEN_ADDRESS=127.0.0.1",
		"VLAG_LISTEN_PORT="+apiPort,
		"VLAG_RENDERER_PORT="+rendererPort,
		"VLAG_ADMIN_SECRET="+testAdminSecret,
		"VLAG_API_KEY="+testAPIKey,
		"VLAG_UPLOAD_BASE_DIR="+uploadDir,
		"VLAG_RATE_LIMIT_STORE=file",
		"VLAG_RATE_LIMIT_DIR="+rateLimitDir,
		fmt.Sprintf("VLAG_RATE_LIMIT_REQUESTS=%d", testRateLimit),
		"VLAG_PROFILE_STORE_PATH="+profileStorePath,
		"VLAG_DEBUG=true",
		"VLAG_LOG_DIR="+logDir,
	)

	start := func(binary string) *exec.Cmd {
		abs, _ := filepath.Abs(binary)
		cmd := exec.Command(abs)
		cmd.Env = env
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			log.Fatalf("FATAL: Failed to start %s: %v", binary, err)
		}
		return cmd
	}
	apiCmd := start(apiBinaryPath)
	rendererCmd := start(rendererBinaryPath)

	stop := func(cmd *exec.Cmd) {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		time.Sleep(300 * time.Millisecond)
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}

	// --- 3. Wait for readiness ---
	if !waitForServerReady(apiBaseURL+"/api/health", readinessTimeout) || !waitForServerReady(rendererBaseURL+"/metrics", readinessTimeout) {
		stop(apiCmd)
		stop(rendererCmd)
		log.Fatalf("FATAL: Servers did not become ready within %v", readinessTimeout)
	}
	log.Println("INFO: Servers are ready!")

	exitCode := m.Run()

	// --- 4. Teardown ---
	stop(apiCmd)
	stop(rendererCmd)
	for _, path := range []string{apiBinaryPath, rendererBinaryPath, workDir} {
		if err := os.RemoveAll(path); err != nil {
			log.Printf("WARN: Failed to remove '%s': %v", path, err)
		}
	}
	os.Exit(exitCode)
}

// --- Helper Functions ---

// waitForServerReady polls a URL until it gets a 200 OK or times out.
func waitForServerReady(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(readinessPoll)
	}
	return false
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Error     string          `json:"error"`
}

// doRequest sends a request and decodes the envelope.
func doRequest(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), "Response is not an envelope: %s", string(body))
	return resp, env
}

func uploadImage(t *testing.T, content []byte, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.jpg")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, apiBaseURL+"/api/upload/profile-image", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(t, req)
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

// --- Workflows ---

func TestUploadWorkflow(t *testing.T) {
	// Requests in this test are counted against the upload rate limit in order.
	t.Run("1. Health", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, apiBaseURL+"/health", nil)
		resp, env := doRequest(t, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, env.Success)
		assert.Equal(t, "VLagIt API is running", env.Message)
	})

	var storedName string
	t.Run("2. Upload As Admin", func(t *testing.T) {
		content := pngImage(t)
		resp, env := uploadImage(t, content, map[string]string{"X-Admin-Secret": testAdminSecret})
		require.Equal(t, http.StatusOK, resp.StatusCode, "Message: %s", env.Message)

		var data struct {
			UID      string `json:"uid"`
			Filename string `json:"filename"`
			MIME     string `json:"mime"`
			Size     int64  `json:"size"`
			URL      string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "admin", data.UID)
		assert.Equal(t, "image/png", data.MIME)
		assert.Equal(t, int64(len(content)), data.Size)
		assert.Equal(t, apiBaseURL+"/uploads/profiles/"+data.Filename, data.URL)

		stored, err := os.ReadFile(filepath.Join(uploadDir, "profiles", data.Filename))
		require.NoError(t, err)
		assert.Equal(t, content, stored)
		storedName = data.Filename
	})

	t.Run("3. Upload Rejected Type", func(t *testing.T) {
		resp, env := uploadImage(t, []byte("<?php echo 'nope'; ?>"), map[string]string{"X-API-Key": testAPIKey})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Unsupported file type", env.Message)

		entries, err := os.ReadDir(filepath.Join(uploadDir, "profiles"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, storedName, entries[0].Name())
	})

	t.Run("4. Upload Unauthorized", func(t *testing.T) {
		resp, env := uploadImage(t, pngImage(t), map[string]string{"Authorization": "Bearer not-a-token"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Unauthorized", env.Message)
	})

	t.Run("5. Rate Limit", func(t *testing.T) {
		// Three upload requests so far; the remaining allowance is used up with API key uploads.
		for i := 3; i < testRateLimit; i++ {
			resp, env := uploadImage(t, pngImage(t), map[string]string{"X-API-Key": testAPIKey})
			require.Equal(t, http.StatusOK, resp.StatusCode, "Upload %d: %s", i+1, env.Message)
		}

		resp, env := uploadImage(t, pngImage(t), map[string]string{"X-API-Key": testAPIKey})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "Rate limit exceeded", env.Message)

		sum := md5.Sum([]byte("127.0.0.1"))
		data, err := os.ReadFile(filepath.Join(rateLimitDir, "rate_limit_"+hex.EncodeToString(sum[:])+".json"))
		require.NoError(t, err, "The file store should persist the counter")
		assert.Contains(t, string(data), fmt.Sprintf(`"requests":%d`, testRateLimit+1))
	})

	t.Run("6. Request Journal", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(logDir, "api_"+time.Now().UTC().Format("2006-01-02")+".log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"endpoint":"upload"`)
		assert.Contains(t, string(data), `"status":429`)
	})
}

func TestRendererWorkflow(t *testing.T) {
	get := func(path string) (*http.Response, string) {
		resp, err := httpClient.Get(rendererBaseURL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	t.Run("Known Profile", func(t *testing.T) {
		resp, body := get("/Ab3dE")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "<title>Ada - VLag Profile</title>")
		assert.Contains(t, body, `content="https://img.example.com/ada.png"`)
	})

	t.Run("Unknown Profile Redirects", func(t *testing.T) {
		resp, _ := get("/Zz9Zz")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))
	})

	t.Run("Store Reload", func(t *testing.T) {
		updated := strings.Replace(initialProfiles, `"Ab3dE"`, `"Zz9Zz"`, 1)
		require.NoError(t, os.WriteFile(profileStorePath, []byte(updated), 0644))
		future := time.Now().Add(time.Second)
		require.NoError(t, os.Chtimes(profileStorePath, future, future))

		assert.Eventually(t, func() bool {
			resp, _ := get("/Zz9Zz")
			return resp.StatusCode == http.StatusOK
		}, 15*time.Second, 250*time.Millisecond, "Renderer should pick up the rewritten store")

		resp, _ := get("/Ab3dE")
		assert.Equal(t, http.StatusFound, resp.StatusCode, "Removed profiles redirect after reload")
	})
}
