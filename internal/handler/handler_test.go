package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emigresto/meal-reservation/internal/database/dbtest"
	"github.com/emigresto/meal-reservation/internal/handler"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/repository"
	"github.com/emigresto/meal-reservation/internal/router"
	"github.com/emigresto/meal-reservation/internal/service"
	"github.com/emigresto/meal-reservation/internal/utils"
	"github.com/emigresto/meal-reservation/internal/worker"
)

const secret = "handler-test"

type server struct {
	t       *testing.T
	e       *echo.Echo
	lock    *memLocker
	tuesday uint64
	dinner  uint64
}

// memLocker is an in-process worker.Locker.
type memLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *memLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return func() {}, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}

func (l *memLocker) set(held bool) {
	l.mu.Lock()
	l.held = held
	l.mu.Unlock()
}

// Monday 2026-10-19, 09:00 UTC: same-day bookings are still open.
var monday = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newServer(t *testing.T) *server {
	t.Helper()
	db := dbtest.Open(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	svc := service.New(service.Deps{
		DB:            db,
		Reservations:  repository.NewReservationRepo(db),
		Periods:       repository.NewPeriodRepo(db),
		Weekdays:      repository.NewWeekdayRepo(db),
		Beneficiaries: repository.NewBeneficiaryRepo(db),
		Occupancy:     repository.NewOccupancyRepo(db),
		Policy:        service.DefaultPolicy(),
		Clock:         func() time.Time { return monday },
		Logger:        log,
	})

	e := echo.New()
	g := router.Guard{JWTSecret: secret, Log: log}
	router.RegisterRoutes(e, db)
	router.RegisterReservations(e, handler.NewReservationHandler(svc, log), g)
	router.RegisterCatalog(e, handler.NewCatalogHandler(svc, log), g)
	lock := &memLocker{}
	sweeper := worker.NewExpirySweeper(svc, time.Hour, lock, time.Minute, log)
	router.RegisterAdmin(e, &handler.AdminHandler{Sweeper: sweeper, Log: log}, g)

	for i, uid := range []uint64{100, 200} {
		dbtest.InsertBeneficiary(t, db, []string{"M100", "M200"}[i], &uid, 10, 10)
	}
	return &server{
		t:       t,
		e:       e,
		lock:    lock,
		tuesday: dbtest.WeekdayID(t, db, 1),
		dinner:  dbtest.PeriodID(t, db, "Dîner"),
	}
}

func token(t *testing.T, sub uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, model.Principal{UserID: sub, Role: model.Role(role)}, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (s *server) do(method, path, tok, body string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (s *server) bookDinnerTuesday(tok string) (*httptest.ResponseRecorder, map[string]any) {
	body := `{"date":"2026-10-20","weekday_id":` + itoa(s.tuesday) + `,"period_id":` + itoa(s.dinner) + `,"time":"19:30"}`
	return s.do(http.MethodPost, "/v1/reservations", tok, body)
}

func itoa(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec, _ := s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRequiresToken(t *testing.T) {
	s := newServer(t)
	rec, _ := s.do(http.MethodGet, "/v1/reservations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndDuplicate(t *testing.T) {
	s := newServer(t)
	tok := token(t, 100, "STUDENT")

	rec, body := s.bookDinnerTuesday(tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "VALID", body["status"])
	assert.Equal(t, "2026-10-20", body["date"])
	assert.Equal(t, "19:30:00", body["time"])

	rec, body = s.bookDinnerTuesday(tok)
	require.Equal(t, http.StatusConflict, rec.Code)
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "DuplicateSlot", errs[0].(map[string]any)["reason"])
}

func TestCreateValidation(t *testing.T) {
	s := newServer(t)
	tok := token(t, 100, "STUDENT")

	rec, body := s.do(http.MethodPost, "/v1/reservations", tok, `{"time":"noon"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := map[string]bool{}
	for _, e := range body["errors"].([]any) {
		fields[e.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["date"])
	assert.True(t, fields["time"])
	assert.True(t, fields["period_id"])
	assert.True(t, fields["weekday_id"])

	rec, body = s.do(http.MethodPost, "/v1/reservations", tok, `{"date":"20/10/2026"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "date", body["errors"].([]any)[0].(map[string]any)["field"])
}

func TestCreateInPast(t *testing.T) {
	s := newServer(t)
	body := `{"date":"2026-10-13","weekday_id":` + itoa(s.tuesday) + `,"period_id":` + itoa(s.dinner) + `,"time":"19:30"}`
	rec, out := s.do(http.MethodPost, "/v1/reservations", token(t, 100, "STUDENT"), body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PastDate", out["errors"].([]any)[0].(map[string]any)["reason"])
}

func TestGetHidesOtherStudentsReservations(t *testing.T) {
	s := newServer(t)
	rec, body := s.bookDinnerTuesday(token(t, 100, "STUDENT"))
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/v1/reservations/" + itoa(uint64(body["id"].(float64)))

	rec, body = s.do(http.MethodGet, path, token(t, 100, "STUDENT"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dîner", body["period"])

	rec, _ = s.do(http.MethodGet, path, token(t, 200, "STUDENT"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodGet, path, token(t, 9, "STAFF"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/v1/reservations/abc", token(t, 9, "STAFF"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newServer(t)
	tok := token(t, 100, "STUDENT")
	_, body := s.bookDinnerTuesday(tok)
	path := "/v1/reservations/" + itoa(uint64(body["id"].(float64)))

	rec, _ := s.do(http.MethodDelete, path, token(t, 200, "STUDENT"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for i := 0; i < 2; i++ {
		rec, _ = s.do(http.MethodDelete, path, tok, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec, body = s.do(http.MethodGet, "/v1/reservations?status=CANCELLED", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["reservations"], 1)

	rec, _ = s.do(http.MethodGet, "/v1/reservations?status=GONE", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(http.MethodGet, "/v1/reservations?page=0", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBatch(t *testing.T) {
	s := newServer(t)
	tok := token(t, 100, "STUDENT")
	rec, _ := s.bookDinnerTuesday(tok)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.do(http.MethodPost, "/v1/reservations/cancel-batch", tok,
		`{"diner":["Mar"],"Déjeuner":["Mar","Xyz"],"Goûter":["Lun"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	successes := body["successes"].([]any)
	require.Len(t, successes, 1)
	assert.Equal(t, "Dîner", successes[0].(map[string]any)["period"])
	assert.Equal(t, "2026-10-20", successes[0].(map[string]any)["date"])

	var got [][2]string
	for _, f := range body["failures"].([]any) {
		m := f.(map[string]any)
		got = append(got, [2]string{m["day"].(string), m["error"].(string)})
	}
	assert.Equal(t, [][2]string{
		{"Mar", service.FailNotFoundOrGone},
		{"Xyz", service.FailInvalidDay},
		{"Lun", service.FailPeriodNotFound},
	}, got)

	rec, body = s.do(http.MethodPost, "/v1/reservations/cancel-batch", tok, `{"Dîner":["Mar"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, body["successes"])
	assert.Len(t, body["failures"], 1)

	for _, bad := range []string{`[]`, `{}`, `{"Dîner":"Mar"}`, `{"Dîner":["Mar"]`} {
		rec, _ = s.do(http.MethodPost, "/v1/reservations/cancel-batch", tok, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestCatalog(t *testing.T) {
	s := newServer(t)
	tok := token(t, 100, "STUDENT")
	_, _ = s.bookDinnerTuesday(tok)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/periods", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var periods []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &periods))
	assert.Len(t, periods, 3)

	rec, body := s.do(http.MethodGet, "/v1/catalog/weekly?period=DINER", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = s.do(http.MethodGet, "/v1/catalog/occupancy?weekday_id="+itoa(s.tuesday)+"&period_id="+itoa(s.dinner)+"&date=2026-10-20", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, _ = s.do(http.MethodGet, "/v1/catalog/occupancy?weekday_id=1", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodGet, "/v1/catalog/outlook", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-10-20", body["tomorrow"])
	assert.EqualValues(t, 1, body["weekly_total"])
	assert.Len(t, body["days"], 7)
}

func TestAdminSweepRequiresStaff(t *testing.T) {
	s := newServer(t)

	rec, _ := s.do(http.MethodPost, "/v1/admin/sweep", token(t, 100, "STUDENT"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := s.do(http.MethodPost, "/v1/admin/sweep", token(t, 1, "ADMIN"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["expired"])
}

func TestAdminSweepHonoursLock(t *testing.T) {
	s := newServer(t)
	s.lock.set(true)

	rec, _ := s.do(http.MethodPost, "/v1/admin/sweep", token(t, 1, "STAFF"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.lock.set(false)
	rec, _ = s.do(http.MethodPost, "/v1/admin/sweep", token(t, 1, "STAFF"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRejectsOutOfRangePage(t *testing.T) {
	s := newServer(t)
	tok := token(t, 100, "STUDENT")

	for _, q := range []string{"page=100001", "page=99999999999999999999", "page_size=0"} {
		rec, _ := s.do(http.MethodGet, "/v1/reservations?"+q, tok, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	rec, body := s.do(http.MethodGet, "/v1/reservations?page=100000", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["reservations"])
}
