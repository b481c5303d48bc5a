package routes

import (
	"context"
	"io"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/calmly-app/calmly/internal/config"
	"github.com/calmly-app/calmly/internal/conversation"
	"github.com/calmly-app/calmly/internal/language"
	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/notification"
)

type echoLLM struct{}

func (echoLLM) Complete(_ context.Context, msg string) (string, error) { return "echo: " + msg, nil }

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text string, _, target language.Code) (string, error) {
	return string(target) + ":" + text, nil
}

type inbox struct {
	mu   sync.Mutex
	last notification.Message
}

func (i *inbox) Send(_ context.Context, m notification.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.last = m
	return nil
}

var sixDigits = regexp.MustCompile(`\d{6}`)

func (i *inbox) code() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return sixDigits.FindString(i.last.Body)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		UserStore:      config.StoreMemory,
		OTPStore:       config.StoreMemory,
		OTPTTL:         300 * time.Second,
		IdempotencyTTL: time.Minute,
		AllowOrigins:   "*",
	}
}

func newApp(t *testing.T, d Deps) (*fiber.App, *inbox) {
	t.Helper()
	box := &inbox{}
	d.LLM = echoLLM{}
	d.Translator = upperTranslator{}
	d.Notifier = box
	d.Logger = logging.Discard()
	app := fiber.New()
	if err := Setup(app, d); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, box
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestEndToEndFlow(t *testing.T) {
	app, box := newApp(t, Deps{Cfg: testConfig()})

	steps := []struct {
		path, body, want string
	}{
		{"/signup", `{"username":"u1","password":"p"}`, `{"success":true}`},
		{"/signup", `{"username":"u1","password":"x"}`, `{"success":false,"message":"User exists"}`},
		{"/signup", `{"username":"","password":"x"}`, `{"success":false,"message":"Missing fields"}`},
		{"/login", `{"username":"u1","password":"p"}`, `{"success":true}`},
		{"/login", `{"username":"u1","password":"wrong"}`, `{"success":false}`},
		{"/login", `{"username":"ghost","password":"p"}`, `{"success":false}`},
		{"/chat", `{"text":"hi"}`, `{"reply":"echo: hi"}`},
		{"/chat", `{"text":"namaste","language":"hi-IN"}`, `{"reply":"hi:echo: en:namaste"}`},
		{"/chat", `{"text":""}`, `{"reply":"` + conversation.PlaceholderReply + `"}`},
		{"/send-otp", `{"email":"a@x.io"}`, `{"success":true}`},
	}
	for _, s := range steps {
		status, body := call(t, app, fiber.MethodPost, s.path, s.body)
		if status != fiber.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d", s.path, s.body, status)
		}
		if body != s.want {
			t.Fatalf("%s %s: expected %s, got %s", s.path, s.body, s.want, body)
		}
	}

	code := box.code()
	if code == "" {
		t.Fatalf("no code delivered: %+v", box.last)
	}
	verify := `{"email":"a@x.io","otp":"` + code + `","password":"secret"}`
	if _, body := call(t, app, fiber.MethodPost, "/verify-otp", verify); body != `{"success":true}` {
		t.Fatalf("verify: %s", body)
	}
	if _, body := call(t, app, fiber.MethodPost, "/verify-otp", verify); body != `{"success":false}` {
		t.Fatalf("replay should fail: %s", body)
	}
	if _, body := call(t, app, fiber.MethodPost, "/login", `{"username":"a@x.io","password":"secret"}`); body != `{"success":true}` {
		t.Fatalf("login after otp registration: %s", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newApp(t, Deps{Cfg: testConfig()})

	if status, body := call(t, app, fiber.MethodGet, "/healthz", ""); status != fiber.StatusOK || !strings.Contains(body, `"status"`) {
		t.Fatalf("healthz: %d %s", status, body)
	}
	status, body := call(t, app, fiber.MethodGet, "/metrics", "")
	if status != fiber.StatusOK || !strings.Contains(body, "calmly_otp_delivery_failures_total") {
		t.Fatalf("metrics: %d", status)
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	app, _ := newApp(t, Deps{Cfg: testConfig()})

	req := httptest.NewRequest(fiber.MethodOptions, "/chat", nil)
	req.Header.Set(fiber.HeaderOrigin, "http://localhost:5173")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestRedisBackedOTPAndHealth(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	cfg := testConfig()
	cfg.OTPStore = config.StoreRedis
	app, box := newApp(t, Deps{Cfg: cfg, Cache: cache})

	if _, body := call(t, app, fiber.MethodPost, "/send-otp", `{"email":"r@x.io"}`); body != `{"success":true}` {
		t.Fatalf("send-otp: %s", body)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("expected otp entry in redis")
	}
	verify := `{"email":"r@x.io","otp":"` + box.code() + `","password":"pw"}`
	if _, body := call(t, app, fiber.MethodPost, "/verify-otp", verify); body != `{"success":true}` {
		t.Fatalf("verify: %s", body)
	}
	if _, body := call(t, app, fiber.MethodGet, "/healthz", ""); !strings.Contains(body, `"redis":"ok"`) {
		t.Fatalf("healthz: %s", body)
	}
}

func TestSetupRejectsMissingBackendOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	cfg.UserStore = config.StorePostgres

	err := Setup(fiber.New(), Deps{Cfg: cfg, LLM: echoLLM{}, Translator: upperTranslator{}, Logger: logging.Discard()})
	if err == nil {
		t.Fatal("expected error for unconnected postgres store")
	}
}

func callWithKey(t *testing.T, app *fiber.App, path, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", key)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestIdempotencyKeyNeverReplaysAcrossRequests(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	cfg := testConfig()
	cfg.OTPStore = config.StoreRedis
	app, _ := newApp(t, Deps{Cfg: cfg, Cache: cache})

	call(t, app, fiber.MethodPost, "/signup", `{"username":"alice","password":"pw"}`)

	if _, body := callWithKey(t, app, "/login", "k1", `{"username":"alice","password":"pw"}`); body != `{"success":true}` {
		t.Fatalf("valid login: %s", body)
	}
	status, body := callWithKey(t, app, "/login", "k1", `{"username":"mallory","password":"wrong"}`)
	if status != fiber.StatusOK || body != `{"success":false}` {
		t.Fatalf("reused key with wrong credentials must fail: %d %s", status, body)
	}

	if _, body := callWithKey(t, app, "/chat", "c1", `{"text":"one"}`); body != `{"reply":"echo: one"}` {
		t.Fatalf("first chat: %s", body)
	}
	status, body = callWithKey(t, app, "/chat", "c1", `{"text":"two"}`)
	if status != fiber.StatusOK || body != `{"reply":"echo: two"}` {
		t.Fatalf("reused key with another message must get its own reply: %d %s", status, body)
	}
	if _, body := callWithKey(t, app, "/chat", "c1", `{"text":"one"}`); body != `{"reply":"echo: one"}` {
		t.Fatalf("same request should replay: %s", body)
	}
}
