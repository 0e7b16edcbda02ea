package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Email       string
	Password    string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
}

type request struct {
	method string
	path   string
	body   any
	// bearer requests carry the token obtained at warm-up.
	bearer bool
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	requests := requestsForProfile(cfg.Profile, cfg.Email, cfg.Password)
	if len(requests) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var token string
	if needsBearer(requests) {
		var err error
		token, err = login(ctx, client, cfg)
		if err != nil {
			return Result{}, fmt.Errorf("warm-up login: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx int64
	jobs := make(chan request, cfg.Concurrency*2)
	wg := sync.WaitGroup{}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				bearer := ""
				if job.bearer {
					bearer = token
				}
				status, err := send(ctx, client, cfg.BaseURL, job, bearer)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&total, 1)
				switch {
				case status >= 200 && status < 300:
					atomic.AddInt64(&s2xx, 1)
				case status >= 400 && status < 500:
					atomic.AddInt64(&s4xx, 1)
				case status >= 500:
					atomic.AddInt64(&s5xx, 1)
				}
			}
		}()
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Result{TotalRequests: total, Failures: failures, Status2xx: s2xx, Status4xx: s4xx, Status5xx: s5xx}, nil
		case <-ticker.C:
			jobs <- requests[rng.IntN(len(requests))]
		}
	}
}

func requestsForProfile(profile, email, password string) []request {
	goodLogin := request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": email, "password": password}}
	badLogin := request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": email, "password": "not-" + password}}
	badVerify := request{method: http.MethodPost, path: "/api/v1/auth/verify", body: map[string]string{"token": "loadgen-invalid-token"}}
	me := request{method: http.MethodPost, path: "/api/v1/auth/me", bearer: true}
	ready := request{method: http.MethodGet, path: "/health/ready"}

	switch strings.ToLower(profile) {
	case "", "mixed":
		return []request{goodLogin, me, me, ready, badLogin}
	case "auth":
		return []request{goodLogin, me}
	case "error-heavy":
		return []request{badLogin, badVerify, {method: http.MethodPost, path: "/api/v1/auth/me"}}
	default:
		return nil
	}
}

func needsBearer(requests []request) bool {
	for _, r := range requests {
		if r.bearer {
			return true
		}
	}
	return false
}

func send(ctx context.Context, client *http.Client, baseURL string, job request, bearer string) (int, error) {
	var payload *bytes.Reader
	if job.body != nil {
		raw, err := json.Marshal(job.body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, job.method, baseURL+job.path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func login(ctx context.Context, client *http.Client, cfg Config) (string, error) {
	raw, err := json.Marshal(map[string]string{"email": cfg.Email, "password": cfg.Password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/auth/login", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Message string `json:"message"`
		Results struct {
			Token string `json:"token"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || env.Results.Token == "" {
		return "", fmt.Errorf("login returned %d: %s", resp.StatusCode, env.Message)
	}
	return env.Results.Token, nil
}
