package catalog

import "time"

// Role values carried in users and JWT claims.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// Subject is one catalog entry. FacultyID is the sparse registered
// assignment: at most one faculty holds a subject at a time.
type Subject struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Credits   int       `json:"credits"`
	Semester  int       `json:"semester"`
	Branch    string    `json:"branch"`
	FacultyID *string   `json:"faculty_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a portal account. RollNo, Semester and Branch are only meaningful
// for students.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	RollNo    *string   `json:"roll_no,omitempty"`
	Semester  *int      `json:"semester,omitempty"`
	Branch    *string   `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Student is the attendance core's view of a user: a key plus the three
// scoping attributes.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RollNo   string `json:"roll_no"`
	Semester int    `json:"semester"`
	Branch   string `json:"branch"`
}
