package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cupcakes/internal/adapters/http/api"
	"github.com/okian/cupcakes/internal/adapters/repository"
	"github.com/okian/cupcakes/internal/domain/model"
	"github.com/okian/cupcakes/pkg/logger"
)

const testDefaultImage = "http://default.example/cupcake.jpg"

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
	os.Exit(m.Run())
}

// mockStore is an in-memory Dependencies implementation.
type mockStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]model.Cupcake
	order   []int64
	failAll error
	pingErr error
	panicOn string
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[int64]model.Cupcake)}
}

func (m *mockStore) List(_ context.Context) ([]model.Cupcake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "list" {
		panic("boom")
	}
	if m.failAll != nil {
		return nil, m.failAll
	}
	out := make([]model.Cupcake, 0, len(m.order))
	for _, id := range m.order {
		if c, ok := m.rows[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) Get(_ context.Context, id int64) (model.Cupcake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return model.Cupcake{}, m.failAll
	}
	c, ok := m.rows[id]
	if !ok {
		return model.Cupcake{}, repository.ErrNotFound
	}
	return c, nil
}

func (m *mockStore) Create(_ context.Context, p model.CreateParams) (model.Cupcake, error) {
	if err := p.Validate(); err != nil {
		return model.Cupcake{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return model.Cupcake{}, m.failAll
	}
	m.nextID++
	c := model.Cupcake{
		ID:     m.nextID,
		Flavor: p.Flavor.OrElse(""),
		Size:   p.Size.OrElse(""),
		Rating: p.Rating.OrElse(0),
		Image:  model.ResolveImage(p.Image.OrElse(""), testDefaultImage),
	}
	m.rows[c.ID] = c
	m.order = append(m.order, c.ID)
	return c, nil
}

func (m *mockStore) Update(_ context.Context, id int64, p model.UpdateParams) (model.Cupcake, error) {
	if err := p.Validate(); err != nil {
		return model.Cupcake{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return model.Cupcake{}, m.failAll
	}
	c, ok := m.rows[id]
	if !ok {
		return model.Cupcake{}, repository.ErrNotFound
	}
	c = p.Apply(c, testDefaultImage)
	m.rows[id] = c
	return c, nil
}

func (m *mockStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *mockStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), m.failAll
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

type mockStatsProvider struct {
	stats map[string]any
	err   error
}

func (m *mockStatsProvider) GetStats(_ context.Context) (map[string]any, error) {
	return m.stats, m.err
}

func newMux(store *mockStore, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(store, &mockStatsProvider{stats: map[string]any{"cupcakes": 0}}, opts...).
		Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		store := newMockStore()
		mux := newMux(store)

		Convey("Then the list endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/api/cupcakes", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("And the health endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("And the stats endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w), ShouldContainKey, "cupcakes")
		})

		Convey("And the metrics endpoint should expose prometheus text", func() {
			do(mux, http.MethodGet, "/api/cupcakes", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "cupcake_api_http_requests_total")
		})

		Convey("And unsupported methods should be rejected", func() {
			w := do(mux, http.MethodPut, "/api/cupcakes/1", `{}`)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("And registering on a nil mux should panic", func() {
			s := api.NewServer(store, nil)
			So(func() { s.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestCupcakesHandler_List(t *testing.T) {
	Convey("Given a cupcakes handler", t, func() {
		store := newMockStore()
		mux := newMux(store)

		Convey("When the store is empty", func() {
			w := do(mux, http.MethodGet, "/api/cupcakes", "")

			Convey("Then it should return an empty array, not null", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"cupcakes":[]}`)
			})
		})

		Convey("When the store has records", func() {
			do(mux, http.MethodPost, "/api/cupcakes", `{"flavor":"cherry","size":"large","rating":5}`)
			do(mux, http.MethodPost, "/api/cupcakes", `{"flavor":"chocolate","size":"small","rating":9}`)
			w := do(mux, http.MethodGet, "/api/cupcakes", "")

			Convey("Then they should be listed in id order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				list := decode(w)["cupcakes"].([]any)
				So(list, ShouldHaveLength, 2)
				So(list[0].(map[string]any)["flavor"], ShouldEqual, "cherry")
				So(list[1].(map[string]any)["flavor"], ShouldEqual, "chocolate")
			})
		})

		Convey("When the store fails", func() {
			store.failAll = errors.New("connection refused on 10.0.0.3:5432")
			w := do(mux, http.MethodGet, "/api/cupcakes", "")

			Convey("Then it should return a generic 500 without internal detail", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode(w)
				So(body["code"], ShouldEqual, "internal_error")
				So(body["message"], ShouldEqual, "internal server error")
				So(w.Body.String(), ShouldNotContainSubstring, "10.0.0.3")
				So(body["request_id"], ShouldEqual, w.Header().Get(api.RequestIDHeader))
			})
		})
	})
}

func TestCupcakesHandler_Create(t *testing.T) {
	Convey("Given a cupcakes handler", t, func() {
		store := newMockStore()
		mux := newMux(store)

		Convey("When creating with all fields", func() {
			w := do(mux, http.MethodPost, "/api/cupcakes",
				`{"flavor":"TestFlavor2","size":"TestSize2","rating":10,"image":"http://test.com/cupcake2.jpg"}`)

			Convey("Then it should return 201 with the stored record", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				c := decode(w)["cupcake"].(map[string]any)
				So(c["id"], ShouldEqual, 1.0)
				So(c["flavor"], ShouldEqual, "TestFlavor2")
				So(c["size"], ShouldEqual, "TestSize2")
				So(c["rating"], ShouldEqual, 10.0)
				So(c["image"], ShouldEqual, "http://test.com/cupcake2.jpg")
				So(store.rows, ShouldHaveLength, 1)
			})
		})

		Convey("When creating without an image", func() {
			w := do(mux, http.MethodPost, "/api/cupcakes", `{"flavor":"cherry","size":"large","rating":4.5}`)

			Convey("Then the default image should be used and rating kept exact", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				c := decode(w)["cupcake"].(map[string]any)
				So(c["image"], ShouldEqual, testDefaultImage)
				So(c["rating"], ShouldEqual, 4.5)
			})
		})

		Convey("When unknown keys are sent", func() {
			w := do(mux, http.MethodPost, "/api/cupcakes", `{"flavor":"cherry","size":"large","rating":1,"frosting":"pink"}`)

			Convey("Then they should be ignored", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(decode(w)["cupcake"], ShouldNotContainKey, "frosting")
			})
		})

		Convey("When a required field is missing", func() {
			cases := []string{
				`{"size":"large","rating":5}`,
				`{"flavor":"cherry","rating":5}`,
				`{"flavor":"cherry","size":"large"}`,
			}
			for _, body := range cases {
				w := do(mux, http.MethodPost, "/api/cupcakes", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			}

			Convey("Then nothing should be stored", func() {
				So(store.rows, ShouldBeEmpty)
			})
		})

		Convey("When a field has the wrong type", func() {
			cases := []string{
				`{"flavor":"cherry","size":"large","rating":"five"}`,
				`{"flavor":1,"size":"large","rating":5}`,
				`{"flavor":"cherry","size":"large","rating":null}`,
				`{"flavor":"cherry","size":"large","rating":5,"image":false}`,
			}

			Convey("Then each should be rejected with 400", func() {
				for _, body := range cases {
					w := do(mux, http.MethodPost, "/api/cupcakes", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(store.rows, ShouldBeEmpty)
			})
		})

		Convey("When the body is not a JSON object", func() {
			Convey("Then it should return 400", func() {
				for _, body := range []string{
					`not json`, `[1,2]`, `null`, `"str"`,
					`{"flavor":"a","size":"b","rating":1} garbage`,
					`{"flavor":"a","size":"b","rating":1}{"flavor":"c"}`,
				} {
					w := do(mux, http.MethodPost, "/api/cupcakes", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(do(mux, http.MethodPost, "/api/cupcakes", "").Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And nothing should have been stored", func() {
				do(mux, http.MethodPost, "/api/cupcakes", `{"flavor":"a","size":"b","rating":1} garbage`)
				So(decode(do(mux, http.MethodGet, "/api/cupcakes", ""))["cupcakes"], ShouldBeEmpty)
			})
		})

		Convey("When the object is followed only by whitespace", func() {
			w := do(mux, http.MethodPost, "/api/cupcakes", "{\"flavor\":\"a\",\"size\":\"b\",\"rating\":1}\n\t ")

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
			})
		})

		Convey("When the error message is returned", func() {
			w := do(mux, http.MethodPost, "/api/cupcakes", `{"flavor":"cherry","size":"large"}`)

			Convey("Then it should name the failing field", func() {
				So(decode(w)["message"], ShouldContainSubstring, "rating")
			})
		})
	})
}

func TestCupcakesHandler_GetUpdateDelete(t *testing.T) {
	Convey("Given a stored cupcake", t, func() {
		store := newMockStore()
		mux := newMux(store)
		do(mux, http.MethodPost, "/api/cupcakes",
			`{"flavor":"TestFlavor","size":"TestSize","rating":5,"image":"http://test.com/cupcake.jpg"}`)

		Convey("When getting it by id", func() {
			w := do(mux, http.MethodGet, "/api/cupcakes/1", "")

			Convey("Then it should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["cupcake"], ShouldResemble, map[string]any{
					"id": 1.0, "flavor": "TestFlavor", "size": "TestSize", "rating": 5.0, "image": "http://test.com/cupcake.jpg",
				})
			})
		})

		Convey("When getting an unknown or malformed id", func() {
			Convey("Then it should return 404", func() {
				for _, path := range []string{"/api/cupcakes/99999", "/api/cupcakes/abc", "/api/cupcakes/0", "/api/cupcakes/-1"} {
					w := do(mux, http.MethodGet, path, "")
					So(w.Code, ShouldEqual, http.StatusNotFound)
					So(decode(w)["code"], ShouldEqual, "not_found")
				}
			})
		})

		Convey("When patching every field", func() {
			w := do(mux, http.MethodPatch, "/api/cupcakes/1",
				`{"flavor":"UpdatedFlavor","size":"UpdatedSize","rating":7.5,"image":"http://test.com/updated-cupcake.jpg"}`)

			Convey("Then the merged record should be returned and stored", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				c := decode(w)["cupcake"].(map[string]any)
				So(c["id"], ShouldEqual, 1.0)
				So(c["flavor"], ShouldEqual, "UpdatedFlavor")
				So(c["rating"], ShouldEqual, 7.5)
				So(store.rows[1].Image, ShouldEqual, "http://test.com/updated-cupcake.jpg")
			})
		})

		Convey("When patching a subset of fields", func() {
			w := do(mux, http.MethodPatch, "/api/cupcakes/1", `{"size":"huge"}`)

			Convey("Then other fields should be untouched", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(store.rows[1], ShouldResemble, model.Cupcake{
					ID: 1, Flavor: "TestFlavor", Size: "huge", Rating: 5, Image: "http://test.com/cupcake.jpg",
				})
			})
		})

		Convey("When patching with no known keys", func() {
			w := do(mux, http.MethodPatch, "/api/cupcakes/1", `{"frosting":"blue"}`)

			Convey("Then the current record should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["cupcake"].(map[string]any)["size"], ShouldEqual, "TestSize")
			})
		})

		Convey("When patching with a wrong type", func() {
			w := do(mux, http.MethodPatch, "/api/cupcakes/1", `{"rating":"high"}`)

			Convey("Then it should return 400 and leave the record unchanged", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(store.rows[1].Rating, ShouldEqual, 5.0)
			})
		})

		Convey("When patching with data after the object", func() {
			w := do(mux, http.MethodPatch, "/api/cupcakes/1", `{"rating":7} {"rating":8}`)

			Convey("Then it should return 400 and leave the record unchanged", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(store.rows[1].Rating, ShouldEqual, 5.0)
			})
		})

		Convey("When patching an unknown id", func() {
			w := do(mux, http.MethodPatch, "/api/cupcakes/99999", `{"flavor":"x"}`)

			Convey("Then it should return 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When deleting it", func() {
			w := do(mux, http.MethodDelete, "/api/cupcakes/1", "")

			Convey("Then it should report deleted and be gone", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"message": "deleted"})
				So(do(mux, http.MethodGet, "/api/cupcakes/1", "").Code, ShouldEqual, http.StatusNotFound)
				So(do(mux, http.MethodDelete, "/api/cupcakes/1", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the middleware chain", t, func() {
		store := newMockStore()

		Convey("When a valid request id is supplied", func() {
			mux := newMux(store)
			id := "3f0e8b57-1a6d-4f0e-9c39-2b7a51f0f2a4"
			req := httptest.NewRequest(http.MethodGet, "/api/cupcakes", http.NoBody)
			req.Header.Set(api.RequestIDHeader, id)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should be echoed back", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, id)
			})
		})

		Convey("When an invalid request id is supplied", func() {
			mux := newMux(store)
			req := httptest.NewRequest(http.MethodGet, "/api/cupcakes", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "not-a-uuid")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then a fresh one should be generated", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldNotEqual, "not-a-uuid")
				So(w.Header().Get(api.RequestIDHeader), ShouldHaveLength, 36)
			})
		})

		Convey("When a handler panics", func() {
			store.panicOn = "list"
			w := do(newMux(store), http.MethodGet, "/api/cupcakes", "")

			Convey("Then it should be reported as a 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["code"], ShouldEqual, "internal_error")
			})
		})

		Convey("When the rate limit is exhausted", func() {
			mux := newMux(store, api.WithRateLimit(0.001, 1))
			first := do(mux, http.MethodGet, "/api/cupcakes", "")
			second := do(mux, http.MethodGet, "/api/cupcakes", "")

			Convey("Then later requests should get 429", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				So(second.Header().Get("Retry-After"), ShouldEqual, "1")
				So(decode(second)["code"], ShouldEqual, "rate_limited")
			})

			Convey("And health checks should not be limited", func() {
				So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When rate limiting is disabled", func() {
			mux := newMux(store, api.WithRateLimit(0, 0))

			Convey("Then bursts should pass", func() {
				for i := 0; i < 20; i++ {
					So(do(mux, http.MethodGet, "/api/cupcakes", "").Code, ShouldEqual, http.StatusOK)
				}
			})
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given health and stats handlers", t, func() {
		store := newMockStore()

		Convey("When the database is unreachable", func() {
			store.pingErr = errors.New("dial tcp: refused")
			w := do(newMux(store), http.MethodGet, "/healthz", "")

			Convey("Then health should answer 503", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode(w)["status"], ShouldEqual, "unavailable")
			})
		})

		Convey("When the stats provider fails", func() {
			mux := http.NewServeMux()
			api.NewServer(store, &mockStatsProvider{err: errors.New("count failed")}).Register(context.Background(), mux)
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then stats should answer 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given API error helpers", t, func() {
		cause := errors.New("flavor: is required")

		Convey("Then WrapKind should match both kind and cause", func() {
			err := api.WrapKind("api.create", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "bad request: flavor: is required")
		})

		Convey("Then NewKind should carry only the kind", func() {
			err := api.NewKind("api.get", api.ErrNotFound)
			So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "cupcake not found")
		})

		Convey("Then nil causes should stay nil", func() {
			So(api.WrapKind("op", api.ErrBadRequest, nil), ShouldBeNil)
			So(api.Wrap("op", nil), ShouldBeNil)
			So(api.Wrap("op", cause).Error(), ShouldEqual, cause.Error())
		})
	})
}
