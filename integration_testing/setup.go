package integration_testing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/2beens/blogportal/internal"
	"github.com/2beens/blogportal/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

const (
	serverPort = 9000
	serverHost = "localhost"

	cookieName = "blogportal_it"
	userEmail  = "member@example.com"
	userPass   = "secret1"
)

var serverEndpoint = fmt.Sprintf("http://%s:%d", serverHost, serverPort)

type Suite struct {
	dockerPool  *dockertest.Pool
	redisClient *redis.Client
	api         *httptest.Server
	server      *internal.Server
	teardown    []func()
}

func newSuite(ctx context.Context) (_ *Suite) {
	var err error
	suite := &Suite{
		teardown: make([]func(), 0),
	}

	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	suite.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}

	// uses pool to try to connect to Docker
	if err = suite.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}

	redisPort, err := suite.redisSetup(ctx)
	if err != nil {
		suite.cleanup()
		log.Fatalf("failed to setup redis: %s", err.Error())
	}

	suite.api = httptest.NewServer(fakeBackend())
	suite.teardown = append(suite.teardown, suite.api.Close)

	cfg, err := getTestConfig(suite.api.URL, redisPort)
	if err != nil {
		suite.cleanup()
		log.Fatalf("test config: %s", err)
	}

	suite.server, err = internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			RedisPassword:           "",
			HoneycombTracingEnabled: false,
		},
	)
	if err != nil {
		suite.cleanup()
		log.Fatalf("new server: %s", err)
	}

	suite.server.Serve(cfg.Host, cfg.Port)

	return suite
}

func (s *Suite) cleanup() {
	if s.server != nil {
		if err := s.server.GracefulShutdown(); err != nil {
			log.Printf("graceful shutdown: %s", err)
		}
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	for _, teardown := range s.teardown {
		teardown()
	}
}

func getTestConfig(apiURL, redisPort string) (*config.Config, error) {
	return config.Parse("dev", fmt.Sprintf(`
[development]
host = %q
port = %d
api_base_url = %q
redis_host = "localhost"
redis_port = %q
session_store = "redis"
session_cookie_name = %q
prometheus_metrics_host = "localhost"
prometheus_metrics_port = "9001"
`, serverHost, serverPort, apiURL, redisPort, cookieName))
}

func (s *Suite) redisSetup(ctx context.Context) (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "6.2",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %s", err)
	}

	s.teardown = append(s.teardown, func() {
		redisResource.Close()
	})

	redisPort := redisResource.GetPort("6379/tcp")
	s.redisClient = redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort("localhost", redisPort),
	})
	if err := s.dockerPool.Retry(func() error {
		return s.redisClient.Ping(ctx).Err()
	}); err != nil {
		return "", fmt.Errorf("ping redis: %s", err)
	}

	return redisPort, nil
}

// testToken is a JWT for the test member, expiring after ttl.
func testToken(ttl time.Duration) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString([]byte("integration-test"))
	if err != nil {
		panic(err)
	}
	return signed
}

// fakeBackend serves the parts of the blog API the login flow needs.
func fakeBackend() http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, body interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	r := mux.NewRouter()
	r.HandleFunc("/auth/user/login", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]string{}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
		if body["email"] != userEmail || body["password"] != userPass {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": testToken(time.Hour),
			"user": map[string]interface{}{
				"id": 7, "username": "member", "email": userEmail,
			},
		})
	}).Methods("POST")
	r.HandleFunc("/rss", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte("<rss></rss>"))
	}).Methods("GET")
	return r
}
