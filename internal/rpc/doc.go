// Package rpc defines the wire contracts between the portal services.
//
// # Transport
//
// Every service speaks gRPC. Messages are plain Go structs carried by a JSON
// codec registered under the "json" content-subtype, so clients created with
// Dial (or any connection that passes CallContentSubtype("json")) interoperate
// with servers that register the descriptors in this package:
//
//	IdentityService    Register, Login, ValidateToken, ListStudents
//	CatalogService     GetCourse, ListCourses, ClaimCourse
//	EnrollmentService  EnrollInCourse, DropFromCourse, GetStudentEnrollments
//	GradingService     UploadGrade, GetStudentGrades, GetCourseGrades,
//	                   GetEnrolledCoursesWithGrades
//
// # Errors
//
// Handlers return gRPC status errors. Each carries a google.rpc.ErrorInfo
// detail whose Reason lets callers tell failures apart without parsing
// messages (COURSE_FULL vs ALREADY_ENROLLED, TOKEN_EXPIRED vs
// AUTHORITY_UNAVAILABLE). Use ReasonOf to read it back.
//
// # Credentials
//
// Requests that need a caller identity carry the bearer token in their Token
// field. The "authorization: Bearer <token>" metadata header is accepted as a
// fallback; WithBearer attaches it to an outgoing context.
package rpc
