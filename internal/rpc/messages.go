// ABOUTME: Request and response messages exchanged by the portal services
// ABOUTME: JSON-tagged structs with validation rules applied server-side

package rpc

// Token kinds reported by ValidateToken when a credential is rejected.
const (
	TokenKindMalformed        = "malformed"
	TokenKindInvalidSignature = "invalid_signature"
	TokenKindExpired          = "expired"
)

// tokenCarrier is implemented by requests that carry a bearer token.
type tokenCarrier interface {
	GetToken() string
}

// TokenOf returns the bearer token embedded in req, if any.
func TokenOf(req any) string {
	if tc, ok := req.(tokenCarrier); ok {
		return tc.GetToken()
	}
	return ""
}

// Identity service

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=80"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=student faculty"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse reports a verdict. A rejected credential is a normal
// response with Valid=false and Kind set, never a transport error.
type ValidateTokenResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
}

type ListStudentsRequest struct {
	Token string `json:"token"`
}

func (r *ListStudentsRequest) GetToken() string { return r.Token }

type StudentInfo struct {
	StudentID string `json:"student_id"`
	Username  string `json:"username"`
}

type ListStudentsResponse struct {
	Students []StudentInfo `json:"students"`
}

// Catalog service

type CourseInfo struct {
	CourseID        string `json:"course_id"`
	Name            string `json:"name"`
	Capacity        int32  `json:"capacity"`
	Enrolled        int32  `json:"enrolled"`
	IsOpen          bool   `json:"is_open"`
	FacultyID       string `json:"faculty_id,omitempty"`
	FacultyUsername string `json:"faculty_username,omitempty"`
}

type GetCourseRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

type GetCourseResponse struct {
	Course CourseInfo `json:"course"`
}

type ListCoursesRequest struct{}

type ListCoursesResponse struct {
	Courses []CourseInfo `json:"courses"`
}

// ClaimCourseRequest assigns a course to a faculty member. FacultyID and
// FacultyUsername default to the caller's identity when empty.
type ClaimCourseRequest struct {
	Token           string `json:"token,omitempty"`
	CourseID        string `json:"course_id" validate:"required"`
	FacultyID       string `json:"faculty_id,omitempty"`
	FacultyUsername string `json:"faculty_username,omitempty"`
}

func (r *ClaimCourseRequest) GetToken() string { return r.Token }

type ClaimCourseResponse struct {
	Message string `json:"message"`
}

// Enrollment service

type EnrollRequest struct {
	Token    string `json:"token,omitempty"`
	CourseID string `json:"course_id" validate:"required"`
}

func (r *EnrollRequest) GetToken() string { return r.Token }

type EnrollResponse struct {
	Message    string `json:"message"`
	EnrolledAt string `json:"enrolled_at"`
}

type DropRequest struct {
	Token    string `json:"token,omitempty"`
	CourseID string `json:"course_id" validate:"required"`
}

func (r *DropRequest) GetToken() string { return r.Token }

type DropResponse struct {
	Message string `json:"message"`
}

// GetStudentEnrollmentsRequest lists the caller's own enrollments. Faculty
// may set StudentID to look up any student.
type GetStudentEnrollmentsRequest struct {
	Token     string `json:"token,omitempty"`
	StudentID string `json:"student_id,omitempty"`
}

func (r *GetStudentEnrollmentsRequest) GetToken() string { return r.Token }

type EnrollmentInfo struct {
	CourseID       string `json:"course_id"`
	CourseName     string `json:"course_name"`
	EnrollmentDate string `json:"enrollment_date"`
}

type EnrollmentsResponse struct {
	StudentID   string           `json:"student_id"`
	Enrollments []EnrollmentInfo `json:"enrollments"`
}

// Grading service

type UploadGradeRequest struct {
	Token     string `json:"token,omitempty"`
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	Grade     string `json:"grade" validate:"required,max=5"`
	Semester  string `json:"semester" validate:"required,max=20"`
	Remarks   string `json:"remarks,omitempty"`
}

func (r *UploadGradeRequest) GetToken() string { return r.Token }

type UploadGradeResponse struct {
	GradeID string `json:"grade_id"`
	Updated bool   `json:"updated"`
	Message string `json:"message"`
}

type GradeInfo struct {
	GradeID    string `json:"grade_id"`
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	Grade      string `json:"grade"`
	Semester   string `json:"semester"`
	Remarks    string `json:"remarks,omitempty"`
	DatePosted string `json:"date_posted"`
	FacultyID  string `json:"faculty_id"`
}

type GetStudentGradesRequest struct {
	Token     string `json:"token,omitempty"`
	StudentID string `json:"student_id,omitempty"`
}

func (r *GetStudentGradesRequest) GetToken() string { return r.Token }

type GradesResponse struct {
	StudentID string      `json:"student_id"`
	Grades    []GradeInfo `json:"grades"`
}

type GetCourseGradesRequest struct {
	Token    string `json:"token,omitempty"`
	CourseID string `json:"course_id" validate:"required"`
}

func (r *GetCourseGradesRequest) GetToken() string { return r.Token }

type CourseGradesResponse struct {
	CourseID string      `json:"course_id"`
	Grades   []GradeInfo `json:"grades"`
}

type TranscriptRequest struct {
	Token string `json:"token,omitempty"`
}

func (r *TranscriptRequest) GetToken() string { return r.Token }

// CourseGradeInfo is one transcript row. Grade fields are empty until the
// grade is released.
type CourseGradeInfo struct {
	CourseID       string `json:"course_id"`
	CourseName     string `json:"course_name"`
	EnrollmentDate string `json:"enrollment_date"`
	GradeReleased  bool   `json:"grade_released"`
	Grade          string `json:"grade,omitempty"`
	Semester       string `json:"semester,omitempty"`
	DatePosted     string `json:"date_posted,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
}

type TranscriptResponse struct {
	StudentName string            `json:"student_name"`
	Courses     []CourseGradeInfo `json:"courses"`
}
