package httpapi

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/contact"
	"github.com/example/parcel-express/internal/identity"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/query"
	"github.com/example/parcel-express/internal/site"
	"github.com/example/parcel-express/internal/storage"
	"github.com/example/parcel-express/internal/upload"
)

const (
	adminID = "owner"
	riderID = "9000000001"
)

type countingService struct {
	backend.Service
	assigned int32
}

func (c *countingService) GetAssignedDeliveries(ctx context.Context, principal string) ([]models.DeliveryOrder, error) {
	atomic.AddInt32(&c.assigned, 1)
	return c.Service.GetAssignedDeliveries(ctx, principal)
}

type fixture struct {
	srv       *Server
	blobs     *blob.MemoryStore
	svc       *countingService
	client    *query.Client
	enquiries *storage.MemoryStore
	provider  *identity.Provider
}

func newFixture(t *testing.T, actor *backend.Actor) *fixture {
	t.Helper()
	blobs := blob.NewMemoryStore("/blobs")
	svc := &countingService{Service: backend.NewMemory([]string{adminID}, blobs)}
	if actor == nil {
		actor = backend.NewReadyActor(svc)
	}
	client := query.NewClient(actor, query.NewCache(time.Minute, nil), nil, nil)
	provider, err := identity.NewProvider("0123456789abcdef0123", time.Hour, false, []identity.Account{
		{Principal: adminID, Passcode: "pw", Name: "Owner"},
		{Principal: riderID, Passcode: "1234", Name: "Ravi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	content, err := site.Load()
	if err != nil {
		t.Fatal(err)
	}
	enquiries := storage.NewMemoryStore()
	srv, err := NewServer(Deps{
		Client:        client,
		Identity:      provider,
		Site:          content,
		Contact:       contact.Default(),
		Blobs:         blobs,
		Enquiries:     enquiries,
		BlobPrefix:    "/blobs",
		FormRateLimit: 100,
		FormBurst:     100,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{srv: srv, blobs: blobs, svc: svc, client: client, enquiries: enquiries, provider: provider}
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader, contentType, principal string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if principal != "" {
		pass := map[string]string{adminID: "pw", riderID: "1234"}[principal]
		token, _, err := f.provider.Login(principal, pass)
		if err != nil {
			t.Fatal(err)
		}
		req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(t *testing.T, target string, form url.Values, principal string) *httptest.ResponseRecorder {
	return f.do(t, http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", principal)
}

func asAdmin() context.Context {
	return backend.WithCaller(context.Background(), backend.Caller{Principal: adminID})
}

func flashOf(rec *httptest.ResponseRecorder) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookie {
			v, _ := url.QueryUnescape(c.Value)
			return v
		}
	}
	return ""
}

func TestPublicPagesRender(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]string{
		"/":             "Become a rider",
		"/services":     "Local shop delivery",
		"/how-it-works": "Book on WhatsApp",
		"/rate-card":    "₹30.00",
		"/contact":      "Send on WhatsApp",
		"/login":        "Passcode",
	}
	for path, want := range cases {
		rec := f.do(t, http.MethodGet, path, nil, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: expected %q in body", path, want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id", path)
		}
	}
}

func TestEnquiryRedirectsToWhatsApp(t *testing.T) {
	f := newFixture(t, nil)
	form := url.Values{"name": {"Asha"}, "phone": {"9111111111"}, "pickup": {"Station Road"}, "delivery": {"Kote Gate"}, "message": {"2 boxes & 1 bag?"}}
	rec := f.post(t, "/contact", form, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://wa.me/919610685264?text=") {
		t.Fatalf("unexpected redirect %q", loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatal(err)
	}
	text := u.Query().Get("text")
	if !strings.Contains(text, "Name: Asha") || !strings.Contains(text, "Message: 2 boxes & 1 bag?") {
		t.Fatalf("message not carried: %q", text)
	}
	got, _ := f.enquiries.RecentEnquiries(context.Background(), 10)
	if len(got) != 1 || got[0].Name != "Asha" {
		t.Fatalf("enquiry not saved: %+v", got)
	}

	rec = f.post(t, "/contact", url.Values{"name": {"NoPhone"}}, "")
	if rec.Header().Get("Location") != "/contact" || !strings.HasPrefix(flashOf(rec), "error|") {
		t.Fatal("incomplete enquiry should bounce back with an error")
	}
}

func TestApplyAsRider(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.post(t, "/apply", url.Values{"name": {"Ravi"}, "mobile": {riderID}, "area": {"Gangashahar"}, "hasBike": {"1"}}, "")
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("apply: %d %q", rec.Code, flashOf(rec))
	}
	apps, err := f.svc.ListRiderApplications(asAdmin())
	if err != nil || len(apps) != 1 || !apps[0].HasBike {
		t.Fatalf("application not stored: %+v %v", apps, err)
	}

	rec = f.post(t, "/apply", url.Values{"name": {"Incomplete"}}, "")
	if !strings.HasPrefix(flashOf(rec), "error|") {
		t.Fatalf("expected error flash, got %q", flashOf(rec))
	}
}

func TestAdminGuard(t *testing.T) {
	f := newFixture(t, nil)
	for _, who := range []string{"", riderID} {
		rec := f.do(t, http.MethodGet, "/admin", nil, "", who)
		if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "Access denied") {
			t.Fatalf("caller %q: expected denial, got %d", who, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "Admin Console") {
			t.Fatal("denied callers must not see the console")
		}
	}
	rec := f.do(t, http.MethodGet, "/admin", nil, "", adminID)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Admin Console") {
		t.Fatalf("admin should see the console, got %d", rec.Code)
	}
}

func TestAdminPlaceholderWhileBackendConnects(t *testing.T) {
	f := newFixture(t, backend.NewActor())
	rec := f.do(t, http.MethodGet, "/admin", nil, "", adminID)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "Loading") {
		t.Fatalf("expected placeholder, got %d", rec.Code)
	}
	if strings.Contains(body, "Access denied") || strings.Contains(body, "Admin Console") {
		t.Fatal("placeholder renders neither the denial nor the console")
	}
	if rec := f.do(t, http.MethodGet, "/ready", nil, "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready should fail before the backend connects, got %d", rec.Code)
	}
}

func TestAdminRateLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	// Warm the cache so the mutation has something to invalidate.
	f.do(t, http.MethodGet, "/rate-card", nil, "", "")

	form := url.Values{"minDistance": {"40"}, "maxDistance": {"60"}, "smallParcelPrice": {"25050"}, "largeParcelPrice": {"30000"}}
	rec := f.post(t, "/admin/rates", form, adminID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("add rate: %q", flashOf(rec))
	}
	if body := f.do(t, http.MethodGet, "/rate-card", nil, "", "").Body.String(); !strings.Contains(body, "₹250.50") {
		t.Fatal("rate card should show the new rate after invalidation")
	}

	rec = f.post(t, "/admin/rates", form, riderID)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin mutation should be refused, got %d", rec.Code)
	}

	rec = f.post(t, "/admin/rates/remove", url.Values{"minDistance": {"40"}, "maxDistance": {"60"}}, adminID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("remove rate: %q", flashOf(rec))
	}
	if body := f.do(t, http.MethodGet, "/rate-card", nil, "", "").Body.String(); strings.Contains(body, "₹250.50") {
		t.Fatal("removed rate still shown")
	}
}

func TestAdminContentPartialUpdate(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.post(t, "/admin/content", url.Values{"contactNumber": {"+911111122222"}}, adminID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("update: %q", flashOf(rec))
	}
	c, _ := f.svc.GetSiteContent(context.Background())
	if c.ContactNumber != "+911111122222" || c.ServicesList == "" {
		t.Fatalf("only the submitted field should change: %+v", c)
	}
}

func TestAdminContentIgnoresEmptyFields(t *testing.T) {
	f := newFixture(t, nil)
	before, _ := f.svc.GetSiteContent(context.Background())
	form := url.Values{"servicesList": {""}, "howItWorks": {"  "}, "contactNumber": {""}, "whatsappTemplate": {""}}
	rec := f.post(t, "/admin/content", form, adminID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("update: %q", flashOf(rec))
	}
	after, _ := f.svc.GetSiteContent(context.Background())
	if after.ServicesList != before.ServicesList || after.HowItWorks != before.HowItWorks ||
		after.ContactNumber != before.ContactNumber || after.WhatsAppTemplate != before.WhatsAppTemplate {
		t.Fatalf("empty fields must leave content unchanged: before %+v after %+v", before, after)
	}
	if after.ContactNumber == "" {
		t.Fatal("seeded contact number missing")
	}
}

func TestAdminActionsRequireAdmin(t *testing.T) {
	f := newFixture(t, nil)
	id := createAssignedOrder(t, f)
	blobsBefore := f.blobs.Len()

	for _, who := range []string{"", riderID} {
		body, ct := multipartProof(t, "proof.jpg", []byte("jpeg-bytes"))
		rec := f.do(t, http.MethodPost, "/admin/orders/"+itoa(id)+"/proof", body, ct, who)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("caller %q: expected 403, got %d", who, rec.Code)
		}
		if flashOf(rec) != "" {
			t.Fatalf("caller %q: refused upload must not report progress, got %q", who, flashOf(rec))
		}
	}
	if f.blobs.Len() != blobsBefore {
		t.Fatal("refused uploads must not store anything")
	}
	if f.srv.Uploads().Len() != 0 {
		t.Fatal("refused uploads must not register a workflow")
	}
	if rec := f.post(t, "/admin/orders/"+itoa(id)+"/delete", nil, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous delete: expected 403, got %d", rec.Code)
	}
	if _, err := f.svc.GetOrder(asAdmin(), id); err != nil {
		t.Fatalf("order should survive: %v", err)
	}
}

func TestAdminActionsWaitForBackend(t *testing.T) {
	f := newFixture(t, backend.NewActor())
	rec := f.post(t, "/admin/rates", url.Values{"minDistance": {"1"}, "maxDistance": {"2"}}, adminID)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while the backend connects, got %d", rec.Code)
	}
}

func TestAssignRiderByTypedContact(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.client.CreateOrder(asAdmin(), models.NewOrder{
		Customer:      models.CustomerDetails{Name: "Asha", ContactNumber: "9111111111"},
		ParcelSize:    "large",
		DistanceRange: models.DistanceRange{Min: 0, Max: 5},
		Price:         4500,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := f.post(t, "/admin/orders/"+itoa(id)+"/assign", url.Values{"profile": {""}, "riderName": {"Mohan"}, "riderContact": {"9000000002"}}, adminID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("assign: %q", flashOf(rec))
	}
	o, _ := f.svc.GetOrder(asAdmin(), id)
	if o.RiderAssignment != "Mohan" || o.RiderContact != "9000000002" {
		t.Fatalf("typed rider not assigned: %+v", o)
	}
	if body := f.do(t, http.MethodGet, "/admin", nil, "", adminID).Body.String(); !strings.Contains(body, `name="riderContact"`) {
		t.Fatal("console should offer a free-text rider contact")
	}
}

func createAssignedOrder(t *testing.T, f *fixture) uint64 {
	t.Helper()
	ctx := asAdmin()
	if err := f.client.AddRiderProfile(ctx, models.RiderProfile{Name: "Ravi", Mobile: riderID, Area: "Gangashahar"}); err != nil {
		t.Fatal(err)
	}
	id, err := f.client.CreateOrder(ctx, models.NewOrder{
		Customer:      models.CustomerDetails{Name: "Asha", ContactNumber: "9111111111", PickupLocation: "Station Road", DestinationLocation: "Kote Gate"},
		ParcelSize:    "small",
		DistanceRange: models.DistanceRange{Min: 0, Max: 5},
		Price:         3000,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := f.post(t, "/admin/orders/"+itoa(id)+"/assign", url.Values{"riderContact": {riderID}}, adminID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("assign: %q", flashOf(rec))
	}
	return id
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

func TestRiderGuardKeepsReadDisabled(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/rider", nil, "", "")
	if !strings.Contains(rec.Body.String(), "Please log in") {
		t.Fatal("expected login affordance")
	}
	if atomic.LoadInt32(&f.svc.assigned) != 0 {
		t.Fatal("assigned deliveries must not be read without an identity")
	}

	id := createAssignedOrder(t, f)
	rec = f.do(t, http.MethodGet, "/rider", nil, "", riderID)
	if body := rec.Body.String(); !strings.Contains(body, "#"+itoa(id)) || !strings.Contains(body, "Mark picked") {
		t.Fatalf("rider should see the assigned order")
	}
	if atomic.LoadInt32(&f.svc.assigned) != 1 {
		t.Fatalf("expected one read, got %d", f.svc.assigned)
	}
}

func TestRiderPlaceholderWhileBackendConnects(t *testing.T) {
	f := newFixture(t, backend.NewActor())
	rec := f.do(t, http.MethodGet, "/rider", nil, "", riderID)
	if body := rec.Body.String(); !strings.Contains(body, "Loading") || strings.Contains(body, "My Deliveries") {
		t.Fatal("expected placeholder while the backend connects")
	}
	if atomic.LoadInt32(&f.svc.assigned) != 0 {
		t.Fatal("assigned deliveries must not be read before the backend is ready")
	}
}

func TestRiderProofUploadNeedsAssignment(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.client.CreateOrder(asAdmin(), models.NewOrder{
		Customer:      models.CustomerDetails{Name: "Asha", ContactNumber: "9111111111"},
		ParcelSize:    "small",
		DistanceRange: models.DistanceRange{Min: 0, Max: 5},
		Price:         3000,
	})
	if err != nil {
		t.Fatal(err)
	}
	body, ct := multipartProof(t, "proof.jpg", []byte("jpeg-bytes"))
	rec := f.do(t, http.MethodPost, "/rider/orders/"+itoa(id)+"/proof", body, ct, riderID)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for an unassigned order, got %d", rec.Code)
	}
	if f.blobs.Len() != 0 || f.srv.Uploads().Len() != 0 {
		t.Fatal("refused upload must not store or register anything")
	}
}

func TestRiderStatusUpdate(t *testing.T) {
	f := newFixture(t, nil)
	id := createAssignedOrder(t, f)
	rec := f.post(t, "/rider/orders/"+itoa(id)+"/status", url.Values{"status": {"picked"}}, riderID)
	if !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("status: %q", flashOf(rec))
	}
	o, _ := f.svc.GetOrder(asAdmin(), id)
	if o.Status != models.StatusPicked {
		t.Fatalf("status not advanced: %s", o.Status)
	}
	rec = f.post(t, "/rider/orders/"+itoa(id)+"/status", url.Values{"status": {"pending"}}, riderID)
	if !strings.HasPrefix(flashOf(rec), "error|") {
		t.Fatal("moving backwards should fail")
	}
}

func multipartProof(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		fw, err := mw.CreateFormFile("proof", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestRiderProofUpload(t *testing.T) {
	f := newFixture(t, nil)
	id := createAssignedOrder(t, f)

	body, ct := multipartProof(t, "proof.jpg", bytes.Repeat([]byte{0xff, 0xd8, 0xff}, 50000))
	rec := f.do(t, http.MethodPost, "/rider/orders/"+itoa(id)+"/proof", body, ct, riderID)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(flashOf(rec), "success|") {
		t.Fatalf("upload start: %d %q", rec.Code, flashOf(rec))
	}

	wf, ok := f.srv.Uploads().Lookup(riderID, id)
	if !ok {
		t.Fatal("workflow not registered")
	}
	deadline := time.Now().Add(2 * time.Second)
	for wf.Snapshot().State != upload.Succeeded {
		if time.Now().After(deadline) {
			t.Fatalf("upload did not finish: %+v", wf.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if snap := wf.Snapshot(); snap.FileName != "" || snap.Progress != 0 {
		t.Fatalf("success clears the selection: %+v", snap)
	}

	o, _ := f.svc.GetOrder(asAdmin(), id)
	if o.DeliveryProof == nil {
		t.Fatal("proof not attached")
	}
	rec = f.do(t, http.MethodGet, "/rider/orders/"+itoa(id)+"/proof", nil, "", riderID)
	if rec.Code != http.StatusOK || rec.Body.Len() != 150000 {
		t.Fatalf("proof download: %d (%d bytes)", rec.Code, rec.Body.Len())
	}
	if rec := f.do(t, http.MethodGet, o.DeliveryProof.DirectURL(), nil, "", ""); rec.Code != http.StatusOK {
		t.Fatalf("direct url not served: %d", rec.Code)
	}
}

func TestProofUploadWithoutFile(t *testing.T) {
	f := newFixture(t, nil)
	id := createAssignedOrder(t, f)
	body, ct := multipartProof(t, "", nil)
	rec := f.do(t, http.MethodPost, "/rider/orders/"+itoa(id)+"/proof", body, ct, riderID)
	if flash := flashOf(rec); !strings.Contains(flash, upload.ErrNoFile.Error()) {
		t.Fatalf("expected no-file error, got %q", flash)
	}
}

func TestLoginAndLogout(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.post(t, "/login", url.Values{"principal": {adminID}, "passcode": {"wrong"}, "next": {"/admin"}}, "")
	if !strings.HasPrefix(rec.Header().Get("Location"), "/login") || !strings.HasPrefix(flashOf(rec), "error|") {
		t.Fatal("bad passcode should return to the login page")
	}

	rec = f.post(t, "/login", url.Values{"principal": {adminID}, "passcode": {"pw"}, "next": {"//evil.example"}}, "")
	if rec.Header().Get("Location") != "/" {
		t.Fatalf("offsite next must be dropped, got %q", rec.Header().Get("Location"))
	}
	var session bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.CookieName && c.Value != "" {
			session = true
		}
	}
	if !session {
		t.Fatal("login should set the session cookie")
	}

	rec = f.post(t, "/logout", nil, adminID)
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.CookieName && c.MaxAge >= 0 {
			t.Fatal("logout should expire the session cookie")
		}
	}
}

func TestFormRateLimit(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.limiter = newIPLimiter(0.001, 1)
	form := url.Values{"name": {"Asha"}, "phone": {"9111111111"}}
	if rec := f.post(t, "/contact", form, ""); rec.Code != http.StatusSeeOther {
		t.Fatalf("first post: %d", rec.Code)
	}
	if rec := f.post(t, "/contact", form, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second post should be limited, got %d", rec.Code)
	}
}

func TestHealthAndFlashRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/healthz", nil, "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/ready", nil, "", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookie, Value: url.QueryEscape("success|Saved!")})
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "Saved!") {
		t.Fatal("flash should render once")
	}
}

func TestResolveLiveFollowsGuards(t *testing.T) {
	f := newFixture(t, nil)
	resolve := func(page, principal string) (int, bool) {
		req := httptest.NewRequest(http.MethodGet, "/live?page="+page, nil)
		if principal != "" {
			req = req.WithContext(identity.WithSession(req.Context(), identity.Session{Principal: principal}))
		}
		sub, ok := f.srv.resolveLive(req)
		return len(sub.Keys), ok
	}
	if n, ok := resolve("rate-card", ""); !ok || n != 1 {
		t.Fatalf("public page should mount its read, got %d %v", n, ok)
	}
	if _, ok := resolve("admin", riderID); ok {
		t.Fatal("non-admins cannot mount the console")
	}
	if n, ok := resolve("admin", adminID); !ok || n != 5 {
		t.Fatalf("admin console mounts, got %d %v", n, ok)
	}
	if _, ok := resolve("rider", ""); ok {
		t.Fatal("rider page needs an identity")
	}
	if n, ok := resolve("rider", riderID); !ok || n != 1 {
		t.Fatalf("rider page mounts assigned deliveries, got %d %v", n, ok)
	}
	if _, ok := resolve("nowhere", adminID); ok {
		t.Fatal("unknown pages are rejected")
	}
}
