package market

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"foodbridge.org/internal/auth"
)

func TestMain(m *testing.M) {
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recordingNotifier) last(kind NotificationKind) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.got) - 1; i >= 0; i-- {
		if r.got[i].Kind == kind {
			return r.got[i], true
		}
	}
	return Notification{}, false
}

type fixture struct {
	store     *InMemory
	notes     *recordingNotifier
	identity  *Identity
	registry  *Registry
	donations *Donations
	requests  *Requests
	stats     *Stats
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewInMemory(),
		notes: &recordingNotifier{},
		now:   time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
	opts := []Option{WithClock(func() time.Time { return f.now }), WithNotifier(f.notes)}
	f.identity = NewIdentity(f.store, opts...)
	f.registry = NewRegistry(f.store, opts...)
	f.donations = NewDonations(f.store, f.registry, opts...)
	f.requests = NewRequests(f.store, f.registry, opts...)
	f.stats = NewStats(f.store, opts...)
	return f
}

func (f *fixture) donor(t *testing.T, email string) User {
	t.Helper()
	u, err := f.identity.Register(context.Background(), RegisterInput{
		Email: email, Password: "secret", FullName: "Donor " + email, Phone: "555-0100", Role: RoleDonor,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// verifiedNGO registers an ngo user, submits a profile at the coordinate and verifies it.
func (f *fixture) verifiedNGO(t *testing.T, email, reg string, lat, lon float64) NgoProfile {
	t.Helper()
	ctx := context.Background()
	u, err := f.identity.Register(ctx, RegisterInput{
		Email: email, Password: "secret", FullName: "Coordinator", Role: RoleNGO,
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := f.registry.CreateProfile(ctx, u.ID, ProfileInput{
		OrganizationName: "Org " + reg, RegistrationNumber: reg, Address: "1 Main St",
		Latitude: lat, Longitude: lon,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.Verify(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	p.Verified = true
	return p
}

func (f *fixture) donate(t *testing.T, donorID, name string, lat, lon float64) Donation {
	t.Helper()
	d, err := f.donations.Create(context.Background(), donorID, DonationInput{
		FoodName: name, Quantity: "10 plates", FoodType: "Cooked Food", Location: "Market Sq",
		Latitude: lat, Longitude: lon, ExpiryTime: f.now.Add(6 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.donor(t, "a@example.com")
	_, err := f.identity.Register(context.Background(), RegisterInput{
		Email: "A@Example.com ", Password: "other", FullName: "Again", Role: RoleNGO,
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	users, _ := f.identity.Users(context.Background(), "")
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []RegisterInput{
		{Email: "", Password: "x", FullName: "n", Role: RoleDonor},
		{Email: "nope", Password: "x", FullName: "n", Role: RoleDonor},
		{Email: "a@b", Password: "", FullName: "n", Role: RoleDonor},
		{Email: "a@b", Password: "x", FullName: " ", Role: RoleDonor},
		{Email: "a@b", Password: "x", FullName: "n", Role: RoleAdmin},
		{Email: "a@b", Password: "x", FullName: "n", Role: "chef"},
	}
	for i, in := range cases {
		if _, err := f.identity.Register(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.donor(t, "d@example.com")
	if u.PasswordHash == "secret" || u.PasswordHash == "" {
		t.Fatalf("password not hashed: %q", u.PasswordHash)
	}

	got, err := f.identity.Authenticate(ctx, "D@example.com", "secret")
	if err != nil || got.ID != u.ID {
		t.Fatalf("authenticate: %v %+v", err, got)
	}
	if _, err := f.identity.Authenticate(ctx, "d@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := f.identity.Authenticate(ctx, "missing@example.com", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestEnsureAdminIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1, err := f.identity.EnsureAdmin(ctx, "admin@example.com", "pw", "")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := f.identity.EnsureAdmin(ctx, "admin@example.com", "other", "Someone")
	if err != nil {
		t.Fatal(err)
	}
	if a1.ID != a2.ID || a1.Role != RoleAdmin || a1.FullName != "System Admin" {
		t.Fatalf("unexpected admin: %+v %+v", a1, a2)
	}
}

func TestEnsureAdminRefusesNonAdminEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "boss@example.com")
	_, err := f.identity.EnsureAdmin(ctx, "Boss@Example.com", "pw", "")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	got, _ := f.identity.User(ctx, donor.ID)
	if got.Role != RoleDonor {
		t.Fatalf("donor role changed to %s", got.Role)
	}
	admins, _ := f.identity.Users(ctx, RoleAdmin)
	if len(admins) != 0 {
		t.Fatalf("unexpected admins: %+v", admins)
	}
}

func TestCreateProfileRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	ngoUser, err := f.identity.Register(ctx, RegisterInput{Email: "n@example.com", Password: "pw", FullName: "N", Role: RoleNGO})
	if err != nil {
		t.Fatal(err)
	}

	in := ProfileInput{OrganizationName: "Food Aid", RegistrationNumber: "REG-1", Address: "Elm"}
	if _, err := f.registry.CreateProfile(ctx, donor.ID, in); !errors.Is(err, ErrValidation) {
		t.Fatalf("donor profile: %v", err)
	}
	small := in
	small.Capacity = 5
	if _, err := f.registry.CreateProfile(ctx, ngoUser.ID, small); !errors.Is(err, ErrValidation) {
		t.Fatalf("small capacity: %v", err)
	}

	p, err := f.registry.CreateProfile(ctx, ngoUser.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if p.Capacity != 50 || p.Rating != 5.0 || p.Verified {
		t.Fatalf("unexpected defaults: %+v", p)
	}

	other, _ := f.identity.Register(ctx, RegisterInput{Email: "m@example.com", Password: "pw", FullName: "M", Role: RoleNGO})
	if _, err := f.registry.CreateProfile(ctx, other.ID, in); !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("duplicate registration: %v", err)
	}
}

func TestVerifyAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mk := func(email, reg string) NgoProfile {
		u, _ := f.identity.Register(ctx, RegisterInput{Email: email, Password: "pw", FullName: "N", Role: RoleNGO})
		p, err := f.registry.CreateProfile(ctx, u.ID, ProfileInput{OrganizationName: "Org", RegistrationNumber: reg, Address: "A"})
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	a := mk("a@example.com", "R-A")
	b := mk("b@example.com", "R-B")

	pending, _ := f.registry.Pending(ctx)
	if len(pending) != 2 || pending[0].ID != a.ID {
		t.Fatalf("pending should be oldest first: %+v", pending)
	}
	if _, err := f.registry.Verify(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.Verify(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-verify: %v", err)
	}
	if _, err := f.registry.Reject(ctx, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject verified: %v", err)
	}
	if _, err := f.registry.Reject(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.Profile(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected profile should be gone: %v", err)
	}
	n, ok := f.notes.last(NotifyNGORejected)
	if !ok || n.To[0] != "b@example.com" {
		t.Fatalf("missing rejection notice: %+v", n)
	}
	if _, err := f.registry.Verify(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("verify missing: %v", err)
	}
}

func TestCreateDonationCountsAndToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	d := f.donate(t, donor.ID, "Rice", 12.97, 77.59)

	if d.Status != DonationPending || d.ID == "" {
		t.Fatalf("unexpected donation: %+v", d)
	}
	if want := "DONATION-20240315103000-" + donor.ID + "-"; len(d.PickupToken) != len(want)+8 || d.PickupToken[:len(want)] != want {
		t.Fatalf("pickup token %q", d.PickupToken)
	}
	u, _ := f.identity.User(ctx, donor.ID)
	if u.TotalDonations != 1 || u.LastDonationDate == nil || !u.LastDonationDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("counters not updated: %+v", u)
	}

	list, err := f.donations.List(ctx, donor.ID, "")
	if err != nil || len(list) != 1 || list[0].ID != d.ID {
		t.Fatalf("list: %v %+v", err, list)
	}
	if _, err := f.donations.List(ctx, donor.ID, "stale"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status filter: %v", err)
	}
	if _, err := f.donations.Create(ctx, donor.ID, DonationInput{FoodName: "x", Quantity: "1", Location: "y"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing expiry: %v", err)
	}
	odd := DonationInput{FoodName: "x", Quantity: "1", Location: "y", FoodType: "Space Food", ExpiryTime: f.now.Add(time.Hour)}
	if _, err := f.donations.Create(ctx, donor.ID, odd); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown food type: %v", err)
	}
}

func TestDonationAlertsNearbyVerifiedNGOs(t *testing.T) {
	f := newFixture(t)
	f.verifiedNGO(t, "near@example.com", "R-1", 12.98, 77.60)
	f.verifiedNGO(t, "far@example.com", "R-2", 13.97, 77.59)
	donor := f.donor(t, "d@example.com")
	f.donate(t, donor.ID, "Bread", 12.97, 77.59)

	n, ok := f.notes.last(NotifyDonationPosted)
	if !ok {
		t.Fatalf("no alert in %v", f.notes.kinds())
	}
	if len(n.To) != 1 || n.To[0] != "near@example.com" {
		t.Fatalf("unexpected recipients %v", n.To)
	}
}

func TestBrowseRequiresVerificationAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 12.97, 77.59)
	donor := f.donor(t, "d@example.com")
	near := f.donate(t, donor.ID, "Fresh Rice", 12.98, 77.59)
	f.now = f.now.Add(time.Minute)
	far := f.donate(t, donor.ID, "Bread", 13.97, 77.59)

	rows, err := f.donations.Browse(ctx, ngo.ID, BrowseFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].ID != far.ID {
		t.Fatalf("expected newest first: %+v", rows)
	}
	if rows[0].PickupToken != "" {
		t.Fatalf("pickup token leaked to browse")
	}
	if rows[1].DistanceKm < 1.10 || rows[1].DistanceKm > 1.12 {
		t.Fatalf("distance %.3f", rows[1].DistanceKm)
	}

	if rows[0].MyRequestStatus != "" || rows[1].MyRequestStatus != "" {
		t.Fatalf("no requests yet: %+v", rows)
	}
	if _, err := f.requests.Create(ctx, near.ID, ngo.ID, ""); err != nil {
		t.Fatal(err)
	}
	other := f.verifiedNGO(t, "o@example.com", "R-2", 12.97, 77.59)
	rows, _ = f.donations.Browse(ctx, ngo.ID, BrowseFilter{})
	if rows[1].ID != near.ID || rows[1].MyRequestStatus != RequestPending || rows[0].MyRequestStatus != "" {
		t.Fatalf("own request status: %+v", rows)
	}
	rows, _ = f.donations.Browse(ctx, other.ID, BrowseFilter{})
	if rows[0].MyRequestStatus != "" || rows[1].MyRequestStatus != "" {
		t.Fatalf("another NGO's request leaked: %+v", rows)
	}

	rows, _ = f.donations.Browse(ctx, ngo.ID, BrowseFilter{MaxDistanceKm: 10})
	if len(rows) != 1 || rows[0].ID != near.ID {
		t.Fatalf("max distance filter: %+v", rows)
	}
	rows, _ = f.donations.Browse(ctx, ngo.ID, BrowseFilter{Search: "Rice"})
	if len(rows) != 1 || rows[0].ID != near.ID {
		t.Fatalf("search filter: %+v", rows)
	}
	rows, _ = f.donations.Browse(ctx, ngo.ID, BrowseFilter{Search: "rice"})
	if len(rows) != 0 {
		t.Fatalf("search should be case-sensitive: %+v", rows)
	}

	u, _ := f.identity.Register(ctx, RegisterInput{Email: "u@example.com", Password: "pw", FullName: "U", Role: RoleNGO})
	p, _ := f.registry.CreateProfile(ctx, u.ID, ProfileInput{OrganizationName: "New", RegistrationNumber: "R-9", Address: "A"})
	if _, err := f.donations.Browse(ctx, p.ID, BrowseFilter{}); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("unverified browse: %v", err)
	}
	if _, err := f.requests.Create(ctx, near.ID, p.ID, ""); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("unverified request: %v", err)
	}
}

func TestCompetingRequestsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	a := f.verifiedNGO(t, "a@example.com", "R-A", 0, 0)
	b := f.verifiedNGO(t, "b@example.com", "R-B", 0, 0)
	d := f.donate(t, donor.ID, "Soup", 0, 0)

	ra, err := f.requests.Create(ctx, d.ID, a.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if ra.Message != "Pickup request from Org R-A" {
		t.Fatalf("default message %q", ra.Message)
	}
	rb, err := f.requests.Create(ctx, d.ID, b.ID, "we can come at 5")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.requests.Create(ctx, d.ID, a.ID, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("duplicate request: %v", err)
	}

	views, err := f.donations.Requests(ctx, donor.ID, d.ID)
	if err != nil || len(views) != 2 || views[0].NgoEmail != "a@example.com" {
		t.Fatalf("donor view: %v %+v", err, views)
	}

	if _, err := f.requests.Accept(ctx, "someone-else", ra.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign accept: %v", err)
	}
	if _, err := f.requests.Accept(ctx, donor.ID, ra.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.donations.Get(ctx, d.ID); got.Status != DonationAccepted {
		t.Fatalf("donation status %s", got.Status)
	}
	if n, ok := f.notes.last(NotifyRequestAccepted); !ok || n.To[0] != "a@example.com" || n.Fields["donor_phone"] != "555-0100" {
		t.Fatalf("accept notice: %+v", n)
	}

	// B stays pending but can no longer be accepted.
	if got, _ := f.requests.Get(ctx, rb.ID); got.Status != RequestPending {
		t.Fatalf("B should stay pending, got %s", got.Status)
	}
	if _, err := f.requests.Accept(ctx, donor.ID, rb.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accept B: %v", err)
	}
	if _, err := f.requests.Complete(ctx, b.ID, rb.ID, Feedback{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete B: %v", err)
	}
	if _, err := f.requests.Create(ctx, d.ID, f.verifiedNGO(t, "c@example.com", "R-C", 0, 0).ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("request on accepted donation: %v", err)
	}

	rating := 4
	done, err := f.requests.Complete(ctx, a.ID, ra.ID, Feedback{Text: " great ", Rating: &rating})
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != RequestCompleted || done.Feedback != "great" || done.CollectedAt == nil {
		t.Fatalf("completed request: %+v", done)
	}
	got, _ := f.donations.Get(ctx, d.ID)
	if got.Status != DonationCompleted || got.CollectedAt == nil {
		t.Fatalf("completed donation: %+v", got)
	}
	prof, _ := f.registry.Profile(ctx, a.ID)
	if prof.TotalPickups != 1 {
		t.Fatalf("pickups %d", prof.TotalPickups)
	}
	if n, ok := f.notes.last(NotifyRequestCompleted); !ok || len(n.To) != 2 {
		t.Fatalf("completion notice: %+v", n)
	}

	beforeD, _ := f.donations.Get(ctx, d.ID)
	beforeA, _ := f.requests.Get(ctx, ra.ID)
	beforeB, _ := f.requests.Get(ctx, rb.ID)
	if _, err := f.requests.Accept(ctx, donor.ID, ra.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accept completed: %v", err)
	}
	if _, err := f.requests.Accept(ctx, donor.ID, rb.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accept B on completed donation: %v", err)
	}
	if _, err := f.requests.Complete(ctx, a.ID, ra.ID, Feedback{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete twice: %v", err)
	}
	afterD, _ := f.donations.Get(ctx, d.ID)
	afterA, _ := f.requests.Get(ctx, ra.ID)
	afterB, _ := f.requests.Get(ctx, rb.ID)
	if !reflect.DeepEqual(beforeD, afterD) {
		t.Fatalf("donation changed: %+v -> %+v", beforeD, afterD)
	}
	if !reflect.DeepEqual(beforeA, afterA) || !reflect.DeepEqual(beforeB, afterB) {
		t.Fatalf("requests changed: %+v %+v -> %+v %+v", beforeA, beforeB, afterA, afterB)
	}
	if afterB.Status != RequestPending {
		t.Fatalf("B status %s", afterB.Status)
	}
	if prof, _ := f.registry.Profile(ctx, a.ID); prof.TotalPickups != 1 {
		t.Fatalf("pickups after rejected transitions %d", prof.TotalPickups)
	}
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	d := f.donate(t, donor.ID, "Soup", 0, 0)

	const n = 8
	reqs := make([]Request, n)
	for i := range reqs {
		ngo := f.verifiedNGO(t, fmt.Sprintf("n%d@example.com", i), fmt.Sprintf("R-%d", i), 0, 0)
		r, err := f.requests.Create(ctx, d.ID, ngo.ID, "")
		if err != nil {
			t.Fatal(err)
		}
		reqs[i] = r
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.requests.Accept(ctx, donor.ID, reqs[i].ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case !errors.Is(err, ErrInvalidTransition):
			t.Fatalf("accept %d: %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one accepted request, got %d", winners)
	}
	accepted := 0
	for _, r := range reqs {
		got, _ := f.requests.Get(ctx, r.ID)
		if got.Status == RequestAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted requests in store %d", accepted)
	}
	if got, _ := f.donations.Get(ctx, d.ID); got.Status != DonationAccepted {
		t.Fatalf("donation status %s", got.Status)
	}
}

func TestCompleteRequiresAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	d := f.donate(t, donor.ID, "Soup", 0, 0)
	r, err := f.requests.Create(ctx, d.ID, ngo.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.requests.Complete(ctx, ngo.ID, r.ID, Feedback{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete pending: %v", err)
	}
	bad := 6
	if _, err := f.requests.Complete(ctx, ngo.ID, r.ID, Feedback{Rating: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("rating out of range: %v", err)
	}
	if got, _ := f.donations.Get(ctx, d.ID); got.Status != DonationPending {
		t.Fatalf("donation moved: %s", got.Status)
	}
}

func TestRejectRemovesPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	d := f.donate(t, donor.ID, "Soup", 0, 0)
	r, _ := f.requests.Create(ctx, d.ID, ngo.ID, "")

	if _, err := f.requests.Reject(ctx, donor.ID, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.requests.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected request still present: %v", err)
	}
	if got, _ := f.donations.Get(ctx, d.ID); got.Status != DonationPending {
		t.Fatalf("donation status %s", got.Status)
	}
	// The NGO may ask again after a rejection.
	if _, err := f.requests.Create(ctx, d.ID, ngo.ID, ""); err != nil {
		t.Fatalf("re-request: %v", err)
	}
}

func TestListForNGOFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	d1 := f.donate(t, donor.ID, "Soup", 0, 0)
	d2 := f.donate(t, donor.ID, "Bread", 0, 0)
	r1, _ := f.requests.Create(ctx, d1.ID, ngo.ID, "")
	f.now = f.now.Add(time.Minute)
	f.requests.Create(ctx, d2.ID, ngo.ID, "")
	if _, err := f.requests.Accept(ctx, donor.ID, r1.ID); err != nil {
		t.Fatal(err)
	}

	all, _ := f.requests.ListForNGO(ctx, ngo.ID, "")
	if len(all) != 2 || all[0].FoodName != "Bread" || all[1].DonorEmail != "d@example.com" {
		t.Fatalf("all requests: %+v", all)
	}
	accepted, _ := f.requests.ListForNGO(ctx, ngo.ID, RequestAccepted)
	if len(accepted) != 1 || accepted[0].ID != r1.ID {
		t.Fatalf("accepted requests: %+v", accepted)
	}
	if _, err := f.requests.ListForNGO(ctx, ngo.ID, "bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad filter: %v", err)
	}
}

func TestFeedHidesContactDetails(t *testing.T) {
	f := newFixture(t)
	donor := f.donor(t, "d@example.com")
	for i := 0; i < 7; i++ {
		f.donate(t, donor.ID, "Item", 0, 0)
	}
	rows, err := f.donations.Feed(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("feed size %d", len(rows))
	}
	for _, r := range rows {
		if r.DonorEmail != "" || r.DonorPhone != "" || r.PickupToken != "" {
			t.Fatalf("feed leaked contact: %+v", r)
		}
		if r.DonorName == "" {
			t.Fatalf("feed missing donor name")
		}
	}
}

func TestRecentDonationsCoversEveryStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	first := f.donate(t, donor.ID, "Soup", 0, 0)
	r, _ := f.requests.Create(ctx, first.ID, ngo.ID, "")
	if _, err := f.requests.Accept(ctx, donor.ID, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.requests.Complete(ctx, ngo.ID, r.ID, Feedback{}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 16; i++ {
		f.now = f.now.Add(time.Minute)
		f.donate(t, donor.ID, fmt.Sprintf("Item %d", i), 0, 0)
	}

	rows, err := f.stats.RecentDonations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 15 || rows[0].FoodName != "Item 15" {
		t.Fatalf("default page: %d rows, first %+v", len(rows), rows[0])
	}
	for _, row := range rows {
		if row.PickupToken != "" || row.DonorName != "Donor d@example.com" {
			t.Fatalf("recent row: %+v", row)
		}
	}

	rows, _ = f.stats.RecentDonations(ctx, 100)
	if len(rows) != 17 {
		t.Fatalf("all rows %d", len(rows))
	}
	if last := rows[len(rows)-1]; last.ID != first.ID || last.Status != DonationCompleted {
		t.Fatalf("completed donation missing: %+v", last)
	}
}

func TestBadgesGrowWithDonations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	prev := 0
	for i := 1; i <= 21; i++ {
		f.donate(t, donor.ID, "Item", 0, 0)
		badges, err := f.identity.Badges(ctx, donor.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(badges) < prev {
			t.Fatalf("badge set shrank at %d donations", i)
		}
		prev = len(badges)
		switch i {
		case 4:
			if len(badges) != 0 {
				t.Fatalf("unexpected badges at 4: %+v", badges)
			}
		case 5:
			if len(badges) != 1 || badges[0].Key != "bronze" {
				t.Fatalf("bronze expected: %+v", badges)
			}
		case 20:
			if badges[0].Key != "silver" {
				t.Fatalf("silver expected: %+v", badges)
			}
		}
	}
}

func TestImpactAndOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.donor(t, "d@example.com")
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	d1 := f.donate(t, donor.ID, "Soup", 0, 0)
	f.donate(t, donor.ID, "Bread", 0, 0)
	r, _ := f.requests.Create(ctx, d1.ID, ngo.ID, "")
	f.requests.Accept(ctx, donor.ID, r.ID)
	rating := 3
	if _, err := f.requests.Complete(ctx, ngo.ID, r.ID, Feedback{Rating: &rating}); err != nil {
		t.Fatal(err)
	}

	imp, err := f.stats.DonorImpact(ctx, donor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if imp.Total != 2 || imp.Completed != 1 || imp.Pending != 1 || imp.Meals != 15 || imp.KgSaved != 5 {
		t.Fatalf("donor impact: %+v", imp)
	}
	ni, _ := f.stats.NGOImpact(ctx, ngo.ID)
	if ni.Completed != 1 || ni.AverageRating != 3 {
		t.Fatalf("ngo impact: %+v", ni)
	}
	ov, _ := f.stats.Overview(ctx)
	if ov.Donors != 1 || ov.NGOs != 1 || ov.VerifiedNGOs != 1 || ov.Donations.Meals != 15 {
		t.Fatalf("overview: %+v", ov)
	}

	lb, _ := f.stats.Leaderboard(ctx, 0)
	if len(lb.Donors) != 1 || lb.Donors[0].Count != 1 || len(lb.NGOs) != 1 || lb.NGOs[0].Count != 1 {
		t.Fatalf("leaderboard: %+v", lb)
	}
	types, _ := f.stats.FoodTypes(ctx, "")
	if len(types) != 1 || types[0].Label != "Cooked Food" || types[0].Count != 2 {
		t.Fatalf("food types: %+v", types)
	}
}

func TestNGOImpactDefaultsRating(t *testing.T) {
	f := newFixture(t)
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	imp, err := f.stats.NGOImpact(context.Background(), ngo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if imp.AverageRating != 5.0 || imp.Total != 0 {
		t.Fatalf("unexpected impact: %+v", imp)
	}
}

func TestActivityWindowIsDense(t *testing.T) {
	f := newFixture(t)
	donor := f.donor(t, "d@example.com")
	f.donate(t, donor.ID, "Today", 0, 0)
	f.now = f.now.AddDate(0, 0, -3)
	f.donate(t, donor.ID, "Earlier", 0, 0)
	f.donate(t, donor.ID, "Earlier too", 0, 0)
	f.now = f.now.AddDate(0, 0, -40)
	f.donate(t, donor.ID, "Too old", 0, 0)
	f.now = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	series, err := f.stats.DonorActivity(context.Background(), donor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 30 {
		t.Fatalf("series length %d", len(series))
	}
	if series[0].Day != "2024-02-15" || series[29].Day != "2024-03-15" {
		t.Fatalf("window bounds %s..%s", series[0].Day, series[29].Day)
	}
	if series[29].Count != 1 || series[26].Count != 2 {
		t.Fatalf("counts: today=%d minus3=%d", series[29].Count, series[26].Count)
	}
	total := 0
	for _, d := range series {
		total += d.Count
	}
	if total != 3 {
		t.Fatalf("window total %d", total)
	}
}

func TestLeaderboardTiesKeepArrivalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.verifiedNGO(t, "first@example.com", "R-1", 0, 0)
	second := f.verifiedNGO(t, "second@example.com", "R-2", 0, 0)
	lb, err := f.stats.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lb.NGOs) != 2 || lb.NGOs[0].ID != first.ID || lb.NGOs[1].ID != second.ID {
		t.Fatalf("tie order: %+v", lb.NGOs)
	}
	if lb.Donors == nil {
		t.Fatalf("donors should be an empty slice")
	}
}

func TestStoriesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ngo := f.verifiedNGO(t, "n@example.com", "R-1", 0, 0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		f.store.AddStory(SuccessStory{NgoID: ngo.ID, Title: "story", CreatedAt: base.AddDate(0, 0, i), ImpactMeals: i})
	}
	stories, err := f.stats.Stories(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stories) != 3 || stories[0].ImpactMeals != 3 || stories[0].OrganizationName != "Org R-1" {
		t.Fatalf("stories: %+v", stories)
	}
}

func TestDistanceAndBadgesFor(t *testing.T) {
	if got := DistanceKm(0, 0, 3, 4); got != 555 {
		t.Fatalf("distance %.2f", got)
	}
	b := BadgesFor(50, 7)
	if len(b) != 2 || b[0].Key != "gold" || b[1].Label != "7 Day Streak" {
		t.Fatalf("badges %+v", b)
	}
}
