package market

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"foodbridge.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. Slices keep
// insertion order, which doubles as arrival order for tie-breaking.
type InMemory struct {
	mu        sync.RWMutex
	users     []*User
	ngos      []*NgoProfile
	donations []*Donation
	requests  []*Request
	stories   []*SuccessStory
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Users() UserStore         { return memUsers{s} }
func (s *InMemory) NGOs() NGOStore           { return memNGOs{s} }
func (s *InMemory) Donations() DonationStore { return memDonations{s} }
func (s *InMemory) Requests() RequestStore   { return memRequests{s} }
func (s *InMemory) Stories() StoryStore      { return memStories{s} }
func (s *InMemory) Stats() StatsStore        { return memStats{s} }

// AddStory inserts a success story. Stories have no write path in the
// service, so this exists for seeding and tests.
func (s *InMemory) AddStory(st SuccessStory) SuccessStory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = ids.New()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	cp := st
	s.stories = append(s.stories, &cp)
	return st
}

// lookups; callers hold the lock.

func (s *InMemory) user(id string) *User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *InMemory) ngo(id string) *NgoProfile {
	for _, n := range s.ngos {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (s *InMemory) donation(id string) *Donation {
	for _, d := range s.donations {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *InMemory) request(id string) *Request {
	for _, r := range s.requests {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *InMemory) contact(n *NgoProfile) NgoContact {
	c := NgoContact{NgoProfile: *n}
	if u := s.user(n.UserID); u != nil {
		c.Email = u.Email
		c.Phone = u.Phone
		c.FullName = u.FullName
	}
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func copyUser(u *User) *User {
	out := *u
	out.LastDonationDate = copyTime(u.LastDonationDate)
	return &out
}

func copyDonation(d *Donation) *Donation {
	out := *d
	out.CollectedAt = copyTime(d.CollectedAt)
	return &out
}

func copyRequest(r *Request) *Request {
	out := *r
	out.AcceptedAt = copyTime(r.AcceptedAt)
	out.CollectedAt = copyTime(r.CollectedAt)
	out.Rating = copyInt(r.Rating)
	return &out
}

// Users -----------------------------------------------------------------------

type memUsers struct{ s *InMemory }

func (m memUsers) Create(ctx context.Context, u *User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.s.users = append(m.s.users, copyUser(u))
	return nil
}

func (m memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u := m.s.user(id)
	if u == nil {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, u := range m.s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m memUsers) List(ctx context.Context, role Role) ([]User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []User
	for i := len(m.s.users) - 1; i >= 0; i-- {
		u := m.s.users[i]
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, *copyUser(u))
	}
	return out, nil
}

// NGOs ------------------------------------------------------------------------

type memNGOs struct{ s *InMemory }

func (m memNGOs) Create(ctx context.Context, p *NgoProfile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.user(p.UserID) == nil {
		return ErrNotFound
	}
	for _, existing := range m.s.ngos {
		if existing.RegistrationNumber == p.RegistrationNumber || existing.UserID == p.UserID {
			return ErrDuplicateRegistration
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	m.s.ngos = append(m.s.ngos, &cp)
	return nil
}

func (m memNGOs) Find(ctx context.Context, id string) (*NgoProfile, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	n := m.s.ngo(id)
	if n == nil {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m memNGOs) FindByUser(ctx context.Context, userID string) (*NgoProfile, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, n := range m.s.ngos {
		if n.UserID == userID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memNGOs) Contact(ctx context.Context, id string) (*NgoContact, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	n := m.s.ngo(id)
	if n == nil {
		return nil, ErrNotFound
	}
	c := m.s.contact(n)
	return &c, nil
}

func (m memNGOs) ListContacts(ctx context.Context, verified bool) ([]NgoContact, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []NgoContact
	for _, n := range m.s.ngos {
		if n.Verified == verified {
			out = append(out, m.s.contact(n))
		}
	}
	return out, nil
}

func (m memNGOs) MarkVerified(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := m.s.ngo(id)
	if n == nil {
		return ErrNotFound
	}
	if n.Verified {
		return ErrInvalidTransition
	}
	n.Verified = true
	return nil
}

func (m memNGOs) DeleteUnverified(ctx context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i, n := range m.s.ngos {
		if n.ID != id {
			continue
		}
		if n.Verified {
			return ErrInvalidTransition
		}
		m.s.ngos = append(m.s.ngos[:i], m.s.ngos[i+1:]...)
		return nil
	}
	return ErrNotFound
}

// Donations -------------------------------------------------------------------

type memDonations struct{ s *InMemory }

func (m memDonations) Create(ctx context.Context, d *Donation, postedOn time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	donor := m.s.user(d.DonorID)
	if donor == nil {
		return ErrNotFound
	}
	if d.ID == "" {
		d.ID = ids.New()
	}
	if d.Status == "" {
		d.Status = DonationPending
	}
	m.s.donations = append(m.s.donations, copyDonation(d))
	day := postedOn.UTC().Truncate(24 * time.Hour)
	donor.TotalDonations++
	donor.LastDonationDate = &day
	return nil
}

func (m memDonations) Find(ctx context.Context, id string) (*Donation, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	d := m.s.donation(id)
	if d == nil {
		return nil, ErrNotFound
	}
	return copyDonation(d), nil
}

func (m memDonations) ListByDonor(ctx context.Context, donorID string, status DonationStatus) ([]Donation, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []Donation
	for i := len(m.s.donations) - 1; i >= 0; i-- {
		d := m.s.donations[i]
		if d.DonorID != donorID || (status != "" && d.Status != status) {
			continue
		}
		out = append(out, *copyDonation(d))
	}
	return out, nil
}

func (m memDonations) ListPending(ctx context.Context, q PendingQuery) ([]DonationListing, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []DonationListing
	for i := len(m.s.donations) - 1; i >= 0; i-- {
		d := m.s.donations[i]
		if d.Status != DonationPending {
			continue
		}
		if q.FoodType != "" && d.FoodType != q.FoodType {
			continue
		}
		if q.Search != "" && !strings.Contains(d.FoodName, q.Search) && !strings.Contains(d.Description, q.Search) {
			continue
		}
		out = append(out, m.s.listing(d))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (m memDonations) ListRecent(ctx context.Context, limit int) ([]DonationListing, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []DonationListing
	for i := len(m.s.donations) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.s.listing(m.s.donations[i]))
	}
	return out, nil
}

// listing copies d with its donor's contact. Callers hold mu.
func (s *InMemory) listing(d *Donation) DonationListing {
	row := DonationListing{Donation: *copyDonation(d)}
	if u := s.user(d.DonorID); u != nil {
		row.DonorName = u.FullName
		row.DonorEmail = u.Email
		row.DonorPhone = u.Phone
	}
	return row
}

// Requests --------------------------------------------------------------------

type memRequests struct{ s *InMemory }

func (m memRequests) Create(ctx context.Context, r *Request) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d := m.s.donation(r.DonationID)
	if d == nil || m.s.ngo(r.NgoID) == nil {
		return ErrNotFound
	}
	if d.Status != DonationPending {
		return ErrInvalidTransition
	}
	for _, existing := range m.s.requests {
		if existing.DonationID == r.DonationID && existing.NgoID == r.NgoID {
			return ErrInvalidTransition
		}
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	m.s.requests = append(m.s.requests, copyRequest(r))
	return nil
}

func (m memRequests) Find(ctx context.Context, id string) (*Request, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	r := m.s.request(id)
	if r == nil {
		return nil, ErrNotFound
	}
	return copyRequest(r), nil
}

// ownedRequest resolves a request whose donation belongs to donorID.
func (s *InMemory) ownedRequest(requestID, donorID string) (*Request, *Donation, error) {
	r := s.request(requestID)
	if r == nil {
		return nil, nil, ErrNotFound
	}
	d := s.donation(r.DonationID)
	if d == nil || d.DonorID != donorID {
		return nil, nil, ErrNotFound
	}
	return r, d, nil
}

func (m memRequests) Accept(ctx context.Context, requestID, donorID string, at time.Time) (*Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, d, err := m.s.ownedRequest(requestID, donorID)
	if err != nil {
		return nil, err
	}
	if r.Status != RequestPending || d.Status != DonationPending {
		return nil, ErrInvalidTransition
	}
	r.Status = RequestAccepted
	r.AcceptedAt = &at
	d.Status = DonationAccepted
	return copyRequest(r), nil
}

func (m memRequests) Reject(ctx context.Context, requestID, donorID string) (*Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, _, err := m.s.ownedRequest(requestID, donorID)
	if err != nil {
		return nil, err
	}
	if r.Status != RequestPending {
		return nil, ErrInvalidTransition
	}
	for i, existing := range m.s.requests {
		if existing.ID == requestID {
			m.s.requests = append(m.s.requests[:i], m.s.requests[i+1:]...)
			break
		}
	}
	return copyRequest(r), nil
}

func (m memRequests) Complete(ctx context.Context, requestID, ngoID string, fb Feedback, at time.Time) (*Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r := m.s.request(requestID)
	if r == nil || r.NgoID != ngoID {
		return nil, ErrNotFound
	}
	d := m.s.donation(r.DonationID)
	n := m.s.ngo(ngoID)
	if d == nil || n == nil {
		return nil, ErrNotFound
	}
	if r.Status != RequestAccepted || d.Status != DonationAccepted {
		return nil, ErrInvalidTransition
	}
	r.Status = RequestCompleted
	r.CollectedAt = &at
	if fb.Text != "" {
		r.Feedback = fb.Text
	}
	if fb.Rating != nil {
		r.Rating = copyInt(fb.Rating)
	}
	collected := at
	d.Status = DonationCompleted
	d.CollectedAt = &collected
	n.TotalPickups++
	return copyRequest(r), nil
}

func (m memRequests) ListByDonation(ctx context.Context, donationID string) ([]DonorRequestView, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []DonorRequestView
	for _, r := range m.s.requests {
		if r.DonationID != donationID {
			continue
		}
		v := DonorRequestView{Request: *copyRequest(r)}
		if n := m.s.ngo(r.NgoID); n != nil {
			c := m.s.contact(n)
			v.OrganizationName = c.OrganizationName
			v.NgoEmail = c.Email
			v.NgoPhone = c.Phone
		}
		out = append(out, v)
	}
	return out, nil
}

func (m memRequests) ListByNGO(ctx context.Context, ngoID string, status RequestStatus) ([]NgoRequestView, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []NgoRequestView
	for i := len(m.s.requests) - 1; i >= 0; i-- {
		r := m.s.requests[i]
		if r.NgoID != ngoID || (status != "" && r.Status != status) {
			continue
		}
		v := NgoRequestView{Request: *copyRequest(r)}
		if d := m.s.donation(r.DonationID); d != nil {
			v.FoodName = d.FoodName
			v.Quantity = d.Quantity
			v.Location = d.Location
			v.Latitude = d.Latitude
			v.Longitude = d.Longitude
			v.ImageData = d.ImageData
			if u := m.s.user(d.DonorID); u != nil {
				v.DonorName = u.FullName
				v.DonorEmail = u.Email
				v.DonorPhone = u.Phone
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// Stories ---------------------------------------------------------------------

type memStories struct{ s *InMemory }

func (m memStories) Recent(ctx context.Context, limit int) ([]SuccessStory, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	sorted := make([]*SuccessStory, len(m.s.stories))
	copy(sorted, m.s.stories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	var out []SuccessStory
	for _, st := range sorted {
		// Stories are listed with their NGO only, as on the home page.
		n := m.s.ngo(st.NgoID)
		if n == nil {
			continue
		}
		cp := *st
		cp.OrganizationName = n.OrganizationName
		out = append(out, cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Stats -----------------------------------------------------------------------

type memStats struct{ s *InMemory }

func countStatus(c *StatusCounts, status string) {
	c.Total++
	switch status {
	case "pending":
		c.Pending++
	case "accepted":
		c.Accepted++
	case "completed":
		c.Completed++
	case "expired":
		c.Expired++
	}
}

func (m memStats) DonationCounts(ctx context.Context, donorID string) (StatusCounts, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var c StatusCounts
	for _, d := range m.s.donations {
		if donorID == "" || d.DonorID == donorID {
			countStatus(&c, string(d.Status))
		}
	}
	return c, nil
}

func (m memStats) RequestCounts(ctx context.Context, ngoID string) (StatusCounts, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var c StatusCounts
	for _, r := range m.s.requests {
		if r.NgoID == ngoID {
			countStatus(&c, string(r.Status))
		}
	}
	return c, nil
}

func (m memStats) AverageRating(ctx context.Context, ngoID string) (float64, bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var sum, n int
	for _, r := range m.s.requests {
		if r.NgoID == ngoID && r.Rating != nil {
			sum += *r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return float64(sum) / float64(n), true, nil
}

func (m memStats) UserCounts(ctx context.Context) (UserCounts, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var c UserCounts
	for _, u := range m.s.users {
		switch u.Role {
		case RoleDonor:
			c.Donors++
		case RoleNGO:
			c.NGOs++
		}
	}
	for _, n := range m.s.ngos {
		if n.Verified {
			c.VerifiedNGOs++
		}
	}
	return c, nil
}

func groupByDay(times []time.Time) []DailyCount {
	counts := map[string]int{}
	for _, t := range times {
		counts[t.UTC().Format(time.DateOnly)]++
	}
	out := make([]DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func (m memStats) DonationsPerDay(ctx context.Context, donorID string, since time.Time) ([]DailyCount, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var times []time.Time
	for _, d := range m.s.donations {
		if (donorID == "" || d.DonorID == donorID) && !d.CreatedAt.Before(since) {
			times = append(times, d.CreatedAt)
		}
	}
	return groupByDay(times), nil
}

func (m memStats) RequestsPerDay(ctx context.Context, ngoID string, since time.Time) ([]DailyCount, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var times []time.Time
	for _, r := range m.s.requests {
		if r.NgoID == ngoID && !r.RequestedAt.Before(since) {
			times = append(times, r.RequestedAt)
		}
	}
	return groupByDay(times), nil
}

func (m memStats) FoodTypeCounts(ctx context.Context, donorID string) ([]LabelCount, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []LabelCount
	index := map[string]int{}
	for _, d := range m.s.donations {
		if donorID != "" && d.DonorID != donorID {
			continue
		}
		i, ok := index[d.FoodType]
		if !ok {
			i = len(out)
			index[d.FoodType] = i
			out = append(out, LabelCount{Label: d.FoodType})
		}
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func (m memStats) TopDonors(ctx context.Context, limit int) ([]LeaderEntry, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []LeaderEntry
	for _, u := range m.s.users {
		n := 0
		for _, d := range m.s.donations {
			if d.DonorID == u.ID && d.Status == DonationCompleted {
				n++
			}
		}
		if n > 0 {
			out = append(out, LeaderEntry{ID: u.ID, Name: u.FullName, Count: n})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memStats) TopNGOs(ctx context.Context, limit int) ([]LeaderEntry, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []LeaderEntry
	for _, n := range m.s.ngos {
		if n.Verified {
			out = append(out, LeaderEntry{ID: n.ID, Name: n.OrganizationName, Count: n.TotalPickups})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
