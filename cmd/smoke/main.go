package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// smoke drives one donation through its full lifecycle against a running API.
func main() {
	log.SetFlags(0)
	base := envOr("FOODBRIDGE_API_URL", "http://localhost:8080")
	grpcAddr := envOr("FOODBRIDGE_GRPC_ADDR", "localhost:9090")
	adminEmail := envOr("FOODBRIDGE_ADMIN_EMAIL", "admin@fooddonation.com")
	adminPassword := os.Getenv("FOODBRIDGE_ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatal("FOODBRIDGE_ADMIN_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	checkHealth(ctx, grpcAddr)

	c := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 5 * time.Second}}
	suffix := uuid.NewString()[:8]

	donorEmail := "smoke-donor-" + suffix + "@example.com"
	ngoEmail := "smoke-ngo-" + suffix + "@example.com"
	c.must(ctx, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": donorEmail, "password": "smoke-pass", "full_name": "Smoke Donor", "role": "donor",
	}, http.StatusCreated, nil)
	c.must(ctx, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": ngoEmail, "password": "smoke-pass", "full_name": "Smoke NGO", "role": "ngo",
	}, http.StatusCreated, nil)

	donor := c.login(ctx, donorEmail, "smoke-pass")
	ngo := c.login(ctx, ngoEmail, "smoke-pass")
	admin := c.login(ctx, adminEmail, adminPassword)

	var profile struct {
		ID string `json:"id"`
	}
	c.must(ctx, http.MethodPost, "/v1/ngo/profile", ngo, map[string]any{
		"organization_name":   "Smoke Food Bank " + suffix,
		"registration_number": "SMOKE-" + suffix,
		"address":             "1 Test Street",
		"latitude":            12.97,
		"longitude":           77.59,
	}, http.StatusCreated, &profile)
	c.must(ctx, http.MethodPost, "/v1/admin/ngos/"+profile.ID+"/verify", admin, nil, http.StatusOK, nil)

	var donation struct {
		ID          string `json:"id"`
		PickupToken string `json:"pickup_token"`
	}
	c.must(ctx, http.MethodPost, "/v1/donations", donor, map[string]any{
		"food_name":   "Smoke Test Meals",
		"quantity":    "10 plates",
		"food_type":   "Cooked Food",
		"location":    "2 Test Street",
		"latitude":    12.98,
		"longitude":   77.60,
		"expiry_time": time.Now().Add(4 * time.Hour).UTC().Format(time.RFC3339),
	}, http.StatusCreated, &donation)

	var request struct {
		ID string `json:"id"`
	}
	c.must(ctx, http.MethodPost, "/v1/donations/"+donation.ID+"/requests", ngo, nil, http.StatusCreated, &request)
	c.must(ctx, http.MethodPost, "/v1/requests/"+request.ID+"/accept", donor, nil, http.StatusOK, nil)
	c.must(ctx, http.MethodPost, "/v1/requests/"+request.ID+"/complete", ngo, map[string]any{
		"feedback": "smoke ok", "rating": 5,
	}, http.StatusOK, nil)

	var impact struct {
		Completed int `json:"completed"`
		Meals     int `json:"meals"`
	}
	c.must(ctx, http.MethodGet, "/v1/donor/impact", donor, nil, http.StatusOK, &impact)
	if impact.Completed != 1 || impact.Meals != 15 {
		log.Fatalf("unexpected donor impact: completed=%d meals=%d", impact.Completed, impact.Meals)
	}

	fmt.Printf("✅ foodbridge smoke test passed: donation=%s token=%s\n", donation.ID, donation.PickupToken)
}

func checkHealth(ctx context.Context, addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc at %s: %v", addr, err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health status %s", resp.GetStatus())
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) login(ctx context.Context, email, password string) string {
	var out struct {
		Token string `json:"token"`
	}
	c.must(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": email, "password": password}, http.StatusOK, &out)
	return out.Token
}

func (c *client) must(ctx context.Context, method, path, token string, body any, want int, out any) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Fatalf("%s %s: expected %d, got %d: %s", method, path, want, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
