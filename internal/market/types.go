package market

import "time"

// Role is the account type chosen at registration.
type Role string

const (
	RoleDonor Role = "donor"
	RoleNGO   Role = "ngo"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleNGO, RoleAdmin:
		return true
	}
	return false
}

// DonationStatus is the lifecycle state of a donation.
type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationAccepted  DonationStatus = "accepted"
	DonationCompleted DonationStatus = "completed"
	// DonationExpired is part of the schema but nothing transitions into it.
	DonationExpired DonationStatus = "expired"
)

func (s DonationStatus) Valid() bool {
	switch s {
	case DonationPending, DonationAccepted, DonationCompleted, DonationExpired:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a pickup request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestCompleted RequestStatus = "completed"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestCompleted:
		return true
	}
	return false
}

// FoodTypes lists the categories offered to donors.
var FoodTypes = []string{"Cooked Food", "Raw Food", "Packaged Food", "Fruits/Vegetables", "Bakery Items"}

const (
	// MealsPerDonation converts a completed donation into estimated meals served.
	MealsPerDonation = 15
	// KgPerDonation converts a completed donation into estimated kilograms saved.
	KgPerDonation = 5

	defaultCapacity = 50
	minCapacity     = 10
	defaultRating   = 5.0
)

// User is an account of any role.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	FullName         string     `json:"full_name"`
	Phone            string     `json:"phone,omitempty"`
	Role             Role       `json:"role"`
	Status           string     `json:"status"`
	Verified         bool       `json:"verified"`
	TotalDonations   int        `json:"total_donations"`
	StreakDays       int        `json:"streak_days"`
	LastDonationDate *time.Time `json:"last_donation_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NgoProfile extends an ngo user with organisation details.
type NgoProfile struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	OrganizationName   string    `json:"organization_name"`
	RegistrationNumber string    `json:"registration_number"`
	Address            string    `json:"address"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Verified           bool      `json:"verified"`
	Capacity           int       `json:"capacity"`
	TotalPickups       int       `json:"total_pickups"`
	Rating             float64   `json:"rating"`
	CreatedAt          time.Time `json:"created_at"`
}

// NgoContact is a profile joined with the owning user's contact details.
type NgoContact struct {
	NgoProfile
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	FullName string `json:"full_name"`
}

// Donation is a single surplus-food offering.
type Donation struct {
	ID          string         `json:"id"`
	DonorID     string         `json:"donor_id"`
	FoodName    string         `json:"food_name"`
	Quantity    string         `json:"quantity"`
	FoodType    string         `json:"food_type,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	ExpiryTime  time.Time      `json:"expiry_time"`
	ImageData   string         `json:"image_data,omitempty"`
	PickupToken string         `json:"pickup_token"`
	Status      DonationStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CollectedAt *time.Time     `json:"collected_at,omitempty"`
	ViewCount   int            `json:"view_count"`
}

// DonationListing is a donation shown to NGOs or on the public feed.
type DonationListing struct {
	Donation
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email,omitempty"`
	DonorPhone string  `json:"donor_phone,omitempty"`
	DistanceKm float64 `json:"distance_km"`
	// MyRequestStatus is the browsing NGO's own request on the donation, if any.
	MyRequestStatus RequestStatus `json:"my_request_status,omitempty"`
}

// Request is an NGO's claim on a donation.
type Request struct {
	ID          string        `json:"id"`
	DonationID  string        `json:"donation_id"`
	NgoID       string        `json:"ngo_id"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	AcceptedAt  *time.Time    `json:"accepted_at,omitempty"`
	CollectedAt *time.Time    `json:"collected_at,omitempty"`
	Feedback    string        `json:"feedback,omitempty"`
	Rating      *int          `json:"rating,omitempty"`
}

// DonorRequestView is a request on a donor's donation with the NGO contact.
type DonorRequestView struct {
	Request
	OrganizationName string `json:"organization_name"`
	NgoEmail         string `json:"ngo_email"`
	NgoPhone         string `json:"ngo_phone,omitempty"`
}

// NgoRequestView is a request as seen by the NGO that made it.
type NgoRequestView struct {
	Request
	FoodName   string  `json:"food_name"`
	Quantity   string  `json:"quantity"`
	Location   string  `json:"location"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ImageData  string  `json:"image_data,omitempty"`
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email"`
	DonorPhone string  `json:"donor_phone,omitempty"`
}

// SuccessStory is a narrative about a completed pickup.
type SuccessStory struct {
	ID               string    `json:"id"`
	DonationID       string    `json:"donation_id,omitempty"`
	NgoID            string    `json:"ngo_id,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
	Title            string    `json:"title"`
	Story            string    `json:"story"`
	ImpactMeals      int       `json:"impact_meals"`
	Featured         bool      `json:"featured"`
	CreatedAt        time.Time `json:"created_at"`
}
