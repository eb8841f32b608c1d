package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-devhub/internal/assistant"
	"github.com/npezzotti/go-devhub/internal/database"
	"github.com/npezzotti/go-devhub/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// findCookie returns the named cookie from the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	if s, ok := v.(string); ok {
		return bytes.NewBufferString(s)
	}
	body, err := json.Marshal(v)
	require.NoError(t, err, "failed to marshal request body")
	return bytes.NewBuffer(body)
}

func assertApiError(t *testing.T, rr *httptest.ResponseRecorder, expected *ApiError) {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr), "failed to decode error response")
	assert.Equal(t, expected.StatusCode, rr.Code, "expected status code to match")
	assert.Equal(t, expected.StatusCode, apiErr.StatusCode)
	assert.Equal(t, expected.Message, apiErr.Message)
}

type mockStatsCache struct {
	mock.Mock
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		DisplayName:  "newuser",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
	}
	validReq := RegisterRequest{
		Username: expectedUser.Username,
		Email:    expectedUser.EmailAddress,
		Password: "password",
	}

	tcases := []struct {
		name        string
		body        any
		mockUser    database.User
		mockErr     error
		callsDb     bool
		expectedErr *ApiError
	}{
		{
			name:     "successfully creates a new account",
			body:     validReq,
			mockUser: expectedUser,
			callsDb:  true,
		},
		{
			name:        "fails with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with missing username",
			body:        RegisterRequest{Email: expectedUser.EmailAddress, Password: "password"},
			expectedErr: NewValidationError("username, email and password are required"),
		},
		{
			name:        "fails with invalid email",
			body:        RegisterRequest{Username: "newuser", Email: "newuser", Password: "password"},
			expectedErr: NewValidationError("invalid email address"),
		},
		{
			name:        "fails with short password",
			body:        RegisterRequest{Username: "newuser", Email: expectedUser.EmailAddress, Password: "pw"},
			expectedErr: NewValidationError("password must be at least 8 characters"),
		},
		{
			name:        "fails with duplicate account",
			body:        validReq,
			mockErr:     database.ErrDuplicate,
			callsDb:     true,
			expectedErr: NewConflictError("username or email already registered"),
		},
		{
			name:        "fails with db error",
			body:        validReq,
			mockErr:     errors.New("db error"),
			callsDb:     true,
			expectedErr: NewInternalServerError(errors.New("db error")),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.callsDb {
				mockRepo.On("CreateUser", mock.Anything, mock.MatchedBy(func(p database.CreateUserParams) bool {
					return p.Username == validReq.Username &&
						p.EmailAddress == validReq.Email &&
						p.DisplayName == validReq.Username &&
						verifyPassword(p.PasswordHash, validReq.Password)
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body))
			rr := httptest.NewRecorder()
			app.createAccount(rr, req)

			if tc.expectedErr != nil {
				assertApiError(t, rr, tc.expectedErr)
				return
			}

			assert.Equal(t, http.StatusCreated, rr.Code)

			var user types.User
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&user), "failed to decode response")
			assert.Equal(t, expectedUser.Id, user.Id)
			assert.Equal(t, expectedUser.Username, user.Username)
			assert.Equal(t, expectedUser.EmailAddress, user.EmailAddress)
			assert.True(t, expectedUser.CreatedAt.Equal(user.CreatedAt))
			assert.NotContains(t, rr.Body.String(), "hashedpassword")
		})
	}
}

func TestLoginHandler(t *testing.T) {
	pwdHash, err := hashPassword("password")
	require.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		Username:     "alice",
		EmailAddress: "alice@example.com",
		PasswordHash: pwdHash,
	}

	tcases := []struct {
		name         string
		body         any
		mockUser     database.User
		mockErr      error
		callsDb      bool
		expectedCode int
	}{
		{
			name:         "successful login",
			body:         LoginRequest{Email: "Alice@example.com ", Password: "password"},
			mockUser:     dbUser,
			callsDb:      true,
			expectedCode: http.StatusOK,
		},
		{
			name:         "wrong password",
			body:         LoginRequest{Email: "alice@example.com", Password: "wrong"},
			mockUser:     dbUser,
			callsDb:      true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown email",
			body:         LoginRequest{Email: "alice@example.com", Password: "password"},
			mockErr:      sql.ErrNoRows,
			callsDb:      true,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "db error",
			body:         LoginRequest{Email: "alice@example.com", Password: "password"},
			mockErr:      errors.New("db error"),
			callsDb:      true,
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "invalid json body",
			body:         "{",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				mockRepo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, tc.body)))

			assert.Equal(t, tc.expectedCode, rr.Code)

			cookie := findCookie(rr, tokenCookieKey)
			if tc.expectedCode != http.StatusOK {
				assert.Nil(t, cookie, "expected no session cookie")
				return
			}

			require.NotNil(t, cookie, "expected session cookie")
			userId, err := app.extractUserIdFromToken(cookie.Value)
			assert.NoError(t, err)
			assert.Equal(t, dbUser.Id, userId)
			assert.True(t, cookie.HttpOnly)
		})
	}
}

func TestSessionHandler(t *testing.T) {
	mockRepo := &database.MockCommunityRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetUserById", mock.Anything, 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()
	mockRepo.On("GetUserById", mock.Anything, 2).Return(database.User{}, sql.ErrNoRows).Once()

	app := newTestApp(t, mockRepo)

	t.Run("current user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(authCookie(t, app, 1))
		rr := httptest.NewRecorder()
		app.srv.Handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var user types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("deleted user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(authCookie(t, app, 2))
		rr := httptest.NewRecorder()
		app.srv.Handler.ServeHTTP(rr, req)

		assertApiError(t, rr, NewNotFoundError())
	})

	t.Run("no context user", func(t *testing.T) {
		rr := httptest.NewRecorder()
		app.session(rr, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
		assertApiError(t, rr, NewUnauthorizedError())
	})
}

func TestLogoutHandler(t *testing.T) {
	app := newTestApp(t, &database.MockCommunityRepository{})

	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected cookie to be overwritten")
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.MaxAge < 0, "expected cookie to be expired")
}

func TestProjectsHandlers(t *testing.T) {
	created := time.Now().UTC()

	t.Run("list", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListProjects", mock.Anything).Return([]database.Project{
			{Id: 1, Title: "devhub", Tags: []string{"go"}, OwnerId: 1, OwnerName: "Alice", CreatedAt: created},
			{Id: 2, Title: "untagged", OwnerId: 2, CreatedAt: created},
		}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var projects []types.Project
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&projects))
		require.Len(t, projects, 2)
		assert.Equal(t, "Alice", projects[0].Owner.DisplayName)
		assert.Equal(t, []string{}, projects[1].Tags, "expected tags to be an empty list")
	})

	t.Run("create", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetUserById", mock.Anything, 1).Return(database.User{Id: 1, DisplayName: "Alice"}, nil).Once()
		mockRepo.On("CreateProject", mock.Anything, database.CreateProjectParams{
			Title:   "devhub",
			RepoUrl: "https://github.com/example/devhub",
			Tags:    []string{"go", "websocket"},
			OwnerId: 1,
		}).Return(database.Project{
			Id:        3,
			Title:     "devhub",
			RepoUrl:   "https://github.com/example/devhub",
			Tags:      []string{"go", "websocket"},
			OwnerId:   1,
			CreatedAt: created,
		}, nil).Once()

		app := newTestApp(t, mockRepo)
		req := httptest.NewRequest(http.MethodPost, "/api/projects", jsonBody(t, CreateProjectRequest{
			Title:   " devhub ",
			RepoUrl: "https://github.com/example/devhub",
			Tags:    []string{"go", "websocket"},
		}))
		req.AddCookie(authCookie(t, app, 1))
		rr := httptest.NewRecorder()
		app.srv.Handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var project types.Project
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&project))
		assert.Equal(t, 3, project.Id)
		assert.Equal(t, "Alice", project.Owner.DisplayName)
	})

	t.Run("create validation", func(t *testing.T) {
		for _, body := range []CreateProjectRequest{
			{Title: ""},
			{Title: "ok", RepoUrl: "ftp://example.com"},
			{Title: "ok", DemoUrl: "not a url"},
		} {
			app := newTestApp(t, &database.MockCommunityRepository{})
			req := httptest.NewRequest(http.MethodPost, "/api/projects", jsonBody(t, body))
			rr := httptest.NewRecorder()
			app.createProject(rr, req.WithContext(WithUserId(req.Context(), 1)))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		}
	})
}

func TestAssistantHandler(t *testing.T) {
	app := newTestApp(t, &database.MockCommunityRepository{})

	t.Run("fallback without credentials", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ai/assistant", jsonBody(t, AssistantRequest{Mode: "debug", Prompt: "nil map panic"}))
		app.srv.Handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var answer assistant.Answer
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&answer))
		assert.Equal(t, assistant.ModeDebug, answer.Mode)
		assert.True(t, answer.Fallback)
		assert.Equal(t, assistant.Fallback(assistant.ModeDebug), answer.Text)
	})

	t.Run("empty prompt", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ai/assistant", jsonBody(t, AssistantRequest{Mode: "explain", Prompt: "  "}))
		app.askAssistant(rr, req)

		assertApiError(t, rr, NewValidationError(assistant.ErrEmptyPrompt.Error()))
	})

	t.Run("prompt too long", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ai/assistant", jsonBody(t, AssistantRequest{Prompt: strings.Repeat("a", maxPromptLength+1)}))
		app.askAssistant(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestApisHandlers(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListApis", mock.Anything).Return([]database.ApiEntry{
			{Id: 1, Name: "Weather", BaseUrl: "https://api.weather.example", Approved: true},
		}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.listApis(rr, httptest.NewRequest(http.MethodGet, "/api/apis", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var apis []types.ApiEntry
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&apis))
		require.Len(t, apis, 1)
		assert.Equal(t, "Weather", apis[0].Name)
	})

	t.Run("submit", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CreateApi", mock.Anything, database.CreateApiParams{
			Name:        "Weather",
			BaseUrl:     "https://api.weather.example",
			Category:    "data",
			AuthType:    "none",
			SubmittedBy: 4,
		}).Return(database.ApiEntry{Id: 9, Name: "Weather", AuthType: "none", SubmittedBy: 4}, nil).Once()

		app := newTestApp(t, mockRepo)
		req := httptest.NewRequest(http.MethodPost, "/api/apis", jsonBody(t, SubmitApiRequest{
			Name:     "Weather",
			BaseUrl:  "https://api.weather.example",
			Category: "data",
		}))
		rr := httptest.NewRecorder()
		app.submitApi(rr, req.WithContext(WithUserId(req.Context(), 4)))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var api types.ApiEntry
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&api))
		assert.Equal(t, 9, api.Id)
		assert.False(t, api.Approved, "expected submissions to await approval")
	})

	t.Run("submit invalid base url", func(t *testing.T) {
		app := newTestApp(t, &database.MockCommunityRepository{})
		req := httptest.NewRequest(http.MethodPost, "/api/apis", jsonBody(t, SubmitApiRequest{Name: "x", BaseUrl: "localhost"}))
		rr := httptest.NewRecorder()
		app.submitApi(rr, req.WithContext(WithUserId(req.Context(), 4)))

		assertApiError(t, rr, NewValidationError("base_url must be an http(s) url"))
	})
}

func TestTestApiHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	tcases := []struct {
		name         string
		path         string
		mockApi      database.ApiEntry
		mockErr      error
		callsDb      bool
		expectedCode int
		expectOk     bool
	}{
		{
			name:         "reachable api",
			path:         "/api/apis/1/test",
			mockApi:      database.ApiEntry{Id: 1, BaseUrl: upstream.URL},
			callsDb:      true,
			expectedCode: http.StatusOK,
			expectOk:     true,
		},
		{
			name:         "unreachable api",
			path:         "/api/apis/1/test",
			mockApi:      database.ApiEntry{Id: 1, BaseUrl: "http://127.0.0.1:1"},
			callsDb:      true,
			expectedCode: http.StatusOK,
			expectOk:     false,
		},
		{
			name:         "unknown api",
			path:         "/api/apis/1/test",
			mockErr:      sql.ErrNoRows,
			callsDb:      true,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "invalid id",
			path:         "/api/apis/abc/test",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				mockRepo.On("GetApiById", mock.Anything, 1).Return(tc.mockApi, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, nil))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode != http.StatusOK {
				return
			}

			var res ApiTestResult
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			assert.Equal(t, tc.expectOk, res.Ok)
			if tc.expectOk {
				assert.Equal(t, http.StatusNoContent, res.StatusCode)
			} else {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestListHandlers(t *testing.T) {
	mockRepo := &database.MockCommunityRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("ListLessons", mock.Anything).Return([]database.Lesson{
		{Id: 1, Title: "Goroutines", Level: "beginner", Position: 1},
	}, nil).Once()
	mockRepo.On("ListHackathons", mock.Anything).Return([]database.Hackathon(nil), errors.New("db error")).Once()

	app := newTestApp(t, mockRepo)

	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/lessons", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var lessons []types.Lesson
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&lessons))
	assert.Equal(t, []types.Lesson{{Id: 1, Title: "Goroutines", Level: "beginner", Position: 1}}, lessons)

	rr = httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/hackathons", nil))
	assertApiError(t, rr, NewInternalServerError(errors.New("db error")))
}

func TestListMessagesHandler(t *testing.T) {
	created := time.Now().UTC()
	rec := database.MessageWithAuthor{
		Message:  database.Message{Id: 5, UserId: 1, Text: "hi", Room: "golang", Type: "text", CreatedAt: created},
		Username: "alice",
	}

	tcases := []struct {
		name         string
		query        string
		room         string
		limit        int
		callsDb      bool
		expectedCode int
	}{
		{"default room", "", "general", 0, true, http.StatusOK},
		{"room and limit", "?room=golang&limit=20", "golang", 20, true, http.StatusOK},
		{"invalid limit", "?limit=ten", "", 0, false, http.StatusBadRequest},
		{"negative limit", "?limit=-1", "", 0, false, http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockCommunityRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.callsDb {
				mockRepo.On("ListMessages", mock.Anything, tc.room, tc.limit).Return([]database.MessageWithAuthor{rec}, nil).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.listMessages(rr, httptest.NewRequest(http.MethodGet, "/api/messages"+tc.query, nil))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode != http.StatusOK {
				return
			}

			var messages []types.Message
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
			require.Len(t, messages, 1)
			assert.Equal(t, "hi", messages[0].Text)
			assert.Equal(t, "alice", messages[0].Author.DisplayName, "expected display name to fall back to username")
		})
	}
}

func TestStatsHandler(t *testing.T) {
	counts := database.Counts{Users: 3, Projects: 2, Messages: 40, Apis: 1}

	t.Run("without cache", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CountStats", mock.Anything).Return(counts, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var st types.Stats
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, types.Stats{Users: 3, Projects: 2, Messages: 40, Apis: 1, OnlineUsers: 0}, st)
	})

	t.Run("cache miss stores counts", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CountStats", mock.Anything).Return(counts, nil).Once()

		sc := &mockStatsCache{}
		defer sc.AssertExpectations(t)
		sc.On("Get", mock.Anything, statsCacheKey, mock.Anything).Return(false, nil).Once()
		sc.On("Set", mock.Anything, statsCacheKey, types.Stats{Users: 3, Projects: 2, Messages: 40, Apis: 1}).Return(nil).Once()

		app := newTestApp(t, mockRepo)
		app.cache = sc
		rr := httptest.NewRecorder()
		app.getStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("cache hit skips the store", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)

		sc := &mockStatsCache{}
		defer sc.AssertExpectations(t)
		sc.On("Get", mock.Anything, statsCacheKey, mock.Anything).Run(func(args mock.Arguments) {
			*args.Get(2).(*types.Stats) = types.Stats{Users: 99}
		}).Return(true, nil).Once()

		app := newTestApp(t, mockRepo)
		app.cache = sc
		rr := httptest.NewRecorder()
		app.getStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var st types.Stats
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, 99, st.Users)
		mockRepo.AssertNotCalled(t, "CountStats", mock.Anything)
	})

	t.Run("cache failure falls through", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CountStats", mock.Anything).Return(counts, nil).Once()

		sc := &mockStatsCache{}
		sc.On("Get", mock.Anything, statsCacheKey, mock.Anything).Return(false, errors.New("redis down")).Once()
		sc.On("Set", mock.Anything, statsCacheKey, mock.Anything).Return(errors.New("redis down")).Once()

		app := newTestApp(t, mockRepo)
		app.cache = sc
		rr := httptest.NewRecorder()
		app.getStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		mockRepo := &database.MockCommunityRepository{}
		mockRepo.On("CountStats", mock.Anything).Return(database.Counts{}, errors.New("db error")).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.getStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

		assertApiError(t, rr, NewInternalServerError(errors.New("db error")))
	})
}

func TestAdminDashboardHandler(t *testing.T) {
	mockRepo := &database.MockCommunityRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("CountStats", mock.Anything).Return(database.Counts{Users: 2}, nil).Once()
	mockRepo.On("ListRecentUsers", mock.Anything, recentUsersLimit).Return([]database.User{
		{Id: 2, Username: "bob", PasswordHash: "secret-hash"},
		{Id: 1, Username: "alice"},
	}, nil).Once()

	app := newTestApp(t, mockRepo)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret-hash")

	var dash AdminDashboard
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&dash))
	assert.Equal(t, 2, dash.Stats.Users)
	require.Len(t, dash.RecentUsers, 2)
	assert.Equal(t, "bob", dash.RecentUsers[0].Username)
}

func TestServeWs(t *testing.T) {
	mockRepo := &database.MockCommunityRepository{}
	app := newTestApp(t, mockRepo)
	go app.cs.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		app.cs.Shutdown(ctx)
	}()

	srv := httptest.NewServer(app.srv.Handler)
	defer srv.Close()
	wsUrl := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("allowed origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://localhost:3000"}}
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl, header)
		require.NoError(t, err, "expected websocket upgrade to succeed")
		defer conn.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		require.NoError(t, conn.WriteJSON(map[string]any{"event": "typing", "data": nil}))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame struct {
			Event string `json:"event"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "error", frame.Event, "expected unknown events to be answered with an error")
	})

	t.Run("foreign origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsUrl, header)
		assert.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
