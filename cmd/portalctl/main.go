// ABOUTME: Client CLI for the portal services
// ABOUTME: Wraps every identity, catalog, enrollment and grading call with colored output

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/2389/portal-core/internal/rpc"
)

// endpoints holds service addresses resolved from the environment.
type endpoints struct {
	identity   string
	catalog    string
	enrollment string
	grading    string
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// resolveEndpoints derives addresses from PORTAL_HOST; per-service variables win.
func resolveEndpoints() endpoints {
	host := getEnv("PORTAL_HOST", "localhost")
	return endpoints{
		identity:   getEnv("PORTAL_IDENTITY_ADDR", host+":50051"),
		catalog:    getEnv("PORTAL_CATALOG_ADDR", host+":50052"),
		enrollment: getEnv("PORTAL_ENROLLMENT_ADDR", host+":50053"),
		grading:    getEnv("PORTAL_GRADING_ADDR", host+":50054"),
	}
}

type cli struct {
	ctx   context.Context
	eps   endpoints
	token string
	conns []*grpc.ClientConn
}

func (c *cli) dial(addr string) (grpc.ClientConnInterface, error) {
	conn, err := rpc.Dial(addr, rpc.DefaultCallTimeout)
	if err != nil {
		return nil, err
	}
	c.conns = append(c.conns, conn)
	return conn, nil
}

func (c *cli) close() {
	for _, conn := range c.conns {
		_ = conn.Close()
	}
}

func (c *cli) authed() context.Context {
	return rpc.WithBearer(c.ctx, c.token)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &cli{ctx: ctx, eps: resolveEndpoints(), token: os.Getenv("PORTAL_TOKEN")}
	defer c.close()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "register":
		err = c.cmdRegister(args)
	case "login":
		err = c.cmdLogin(args)
	case "validate":
		err = c.cmdValidate(args)
	case "students":
		err = c.cmdStudents()
	case "courses":
		err = c.cmdCourses()
	case "course":
		err = c.cmdCourse(args)
	case "claim":
		err = c.cmdClaim(args)
	case "enroll":
		err = c.cmdEnroll(args)
	case "drop":
		err = c.cmdDrop(args)
	case "enrollments":
		err = c.cmdEnrollments(args)
	case "grade":
		err = c.cmdGrade(args)
	case "grades":
		err = c.cmdGrades(args)
	case "roster":
		err = c.cmdRoster(args)
	case "transcript":
		err = c.cmdTranscript()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		printError(err)
		c.close()
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: portalctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  register USER PASS [--role faculty]   Create an account and print its token")
	fmt.Println("  login USER PASS                       Print a fresh token")
	fmt.Println("  validate TOKEN                        Ask the identity service about a token")
	fmt.Println("  students                              List students (faculty)")
	fmt.Println("  courses                               List the catalog")
	fmt.Println("  course ID                             Show one course")
	fmt.Println("  claim ID                              Claim a course (faculty)")
	fmt.Println("  enroll ID | drop ID                   Enroll in or drop a course (student)")
	fmt.Println("  enrollments [--student ID]            List enrollments")
	fmt.Println("  grade --student ID --course ID --grade G --semester S [--remarks R]")
	fmt.Println("                                        Post or replace a grade (faculty)")
	fmt.Println("  grades [--student ID]                 List grades")
	fmt.Println("  roster COURSE                         List a course's grades (faculty)")
	fmt.Println("  transcript                            Enrolled courses with grades (student)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PORTAL_TOKEN              Bearer token")
	fmt.Println("  PORTAL_HOST               Host for all services (default: localhost)")
	fmt.Println("  PORTAL_<SERVICE>_ADDR     Override one service, e.g. PORTAL_GRADING_ADDR")
	fmt.Println()
}

// printError shows the status code and machine-readable reason when present.
func printError(err error) {
	st, ok := status.FromError(err)
	if !ok {
		color.Red("Error: %v", err)
		return
	}
	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(os.Stderr, "Error: %s", st.Message())
	if reason := rpc.ReasonOf(err); reason != "" {
		color.New(color.FgHiBlack).Fprintf(os.Stderr, " [%s %s]", st.Code(), reason)
	}
	fmt.Fprintln(os.Stderr)
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: portalctl %s", usage)
	}
	return nil
}

func (c *cli) identity() (*rpc.IdentityClient, error) {
	conn, err := c.dial(c.eps.identity)
	if err != nil {
		return nil, err
	}
	return rpc.NewIdentityClient(conn), nil
}

func (c *cli) catalog() (*rpc.CatalogClient, error) {
	conn, err := c.dial(c.eps.catalog)
	if err != nil {
		return nil, err
	}
	return rpc.NewCatalogClient(conn), nil
}

func (c *cli) enrollment() (*rpc.EnrollmentClient, error) {
	conn, err := c.dial(c.eps.enrollment)
	if err != nil {
		return nil, err
	}
	return rpc.NewEnrollmentClient(conn), nil
}

func (c *cli) grading() (*rpc.GradingClient, error) {
	conn, err := c.dial(c.eps.grading)
	if err != nil {
		return nil, err
	}
	return rpc.NewGradingClient(conn), nil
}

func (c *cli) cmdRegister(args []string) error {
	if err := needArgs(args, 2, "register USER PASS [--role ROLE]"); err != nil {
		return err
	}
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	role := fs.String("role", "", "student or faculty")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}
	client, err := c.identity()
	if err != nil {
		return err
	}
	resp, err := client.Register(c.ctx, &rpc.RegisterRequest{Username: args[0], Password: args[1], Role: *role})
	if err != nil {
		return err
	}
	printAuth(resp)
	return nil
}

func (c *cli) cmdLogin(args []string) error {
	if err := needArgs(args, 2, "login USER PASS"); err != nil {
		return err
	}
	client, err := c.identity()
	if err != nil {
		return err
	}
	resp, err := client.Login(c.ctx, &rpc.LoginRequest{Username: args[0], Password: args[1]})
	if err != nil {
		return err
	}
	printAuth(resp)
	return nil
}

func printAuth(resp *rpc.AuthResponse) {
	color.Green("  ✓ %s (%s) %s", resp.Username, resp.Role, resp.UserID)
	color.New(color.FgHiBlack).Printf("    expires %s\n", resp.ExpiresAt)
	fmt.Printf("export PORTAL_TOKEN=%q\n", resp.Token)
}

func (c *cli) cmdValidate(args []string) error {
	token := c.token
	if len(args) > 0 {
		token = args[0]
	}
	client, err := c.identity()
	if err != nil {
		return err
	}
	resp, err := client.ValidateToken(c.ctx, &rpc.ValidateTokenRequest{Token: token})
	if err != nil {
		return err
	}
	if !resp.Valid {
		color.Red("  ✗ invalid (%s): %s", resp.Kind, resp.Message)
		return nil
	}
	color.Green("  ✓ %s (%s) %s", resp.Username, resp.Role, resp.UserID)
	return nil
}

func (c *cli) cmdStudents() error {
	client, err := c.identity()
	if err != nil {
		return err
	}
	resp, err := client.ListStudents(c.authed(), &rpc.ListStudentsRequest{})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT ID\tUSERNAME")
	for _, s := range resp.Students {
		fmt.Fprintf(w, "%s\t%s\n", s.StudentID, s.Username)
	}
	return w.Flush()
}

func (c *cli) cmdCourses() error {
	client, err := c.catalog()
	if err != nil {
		return err
	}
	resp, err := client.ListCourses(c.ctx, &rpc.ListCoursesRequest{})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSEATS\tSTATUS\tFACULTY")
	for _, course := range resp.Courses {
		printCourseRow(w, course)
	}
	return w.Flush()
}

func (c *cli) cmdCourse(args []string) error {
	if err := needArgs(args, 1, "course ID"); err != nil {
		return err
	}
	client, err := c.catalog()
	if err != nil {
		return err
	}
	resp, err := client.GetCourse(c.ctx, &rpc.GetCourseRequest{CourseID: args[0]})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSEATS\tSTATUS\tFACULTY")
	printCourseRow(w, resp.Course)
	return w.Flush()
}

func printCourseRow(w *tabwriter.Writer, course rpc.CourseInfo) {
	state := color.GreenString("open")
	switch {
	case !course.IsOpen:
		state = color.RedString("closed")
	case course.Enrolled >= course.Capacity:
		state = color.YellowString("full")
	}
	faculty := course.FacultyUsername
	if faculty == "" {
		faculty = color.HiBlackString("unclaimed")
	}
	fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n", course.CourseID, course.Name, course.Enrolled, course.Capacity, state, faculty)
}

func (c *cli) cmdClaim(args []string) error {
	if err := needArgs(args, 1, "claim ID"); err != nil {
		return err
	}
	client, err := c.catalog()
	if err != nil {
		return err
	}
	resp, err := client.ClaimCourse(c.authed(), &rpc.ClaimCourseRequest{CourseID: args[0]})
	if err != nil {
		return err
	}
	color.Green("  ✓ %s", resp.Message)
	return nil
}

func (c *cli) cmdEnroll(args []string) error {
	if err := needArgs(args, 1, "enroll ID"); err != nil {
		return err
	}
	client, err := c.enrollment()
	if err != nil {
		return err
	}
	resp, err := client.EnrollInCourse(c.authed(), &rpc.EnrollRequest{CourseID: args[0]})
	if err != nil {
		return err
	}
	color.Green("  ✓ %s at %s", resp.Message, resp.EnrolledAt)
	return nil
}

func (c *cli) cmdDrop(args []string) error {
	if err := needArgs(args, 1, "drop ID"); err != nil {
		return err
	}
	client, err := c.enrollment()
	if err != nil {
		return err
	}
	resp, err := client.DropFromCourse(c.authed(), &rpc.DropRequest{CourseID: args[0]})
	if err != nil {
		return err
	}
	color.Green("  ✓ %s", resp.Message)
	return nil
}

func studentFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	student := fs.String("student", "", "student id (faculty only; default yourself)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *student, nil
}

func (c *cli) cmdEnrollments(args []string) error {
	student, err := studentFlag("enrollments", args)
	if err != nil {
		return err
	}
	client, err := c.enrollment()
	if err != nil {
		return err
	}
	resp, err := client.GetStudentEnrollments(c.authed(), &rpc.GetStudentEnrollmentsRequest{StudentID: student})
	if err != nil {
		return err
	}
	color.New(color.FgHiBlack).Printf("student %s\n", resp.StudentID)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COURSE\tNAME\tENROLLED")
	for _, e := range resp.Enrollments {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.CourseID, e.CourseName, e.EnrollmentDate)
	}
	return w.Flush()
}

func (c *cli) cmdGrade(args []string) error {
	fs := flag.NewFlagSet("grade", flag.ContinueOnError)
	student := fs.String("student", "", "student id")
	course := fs.String("course", "", "course id")
	grade := fs.String("grade", "", "letter grade")
	semester := fs.String("semester", "", "semester, e.g. \"Fall 2025\"")
	remarks := fs.String("remarks", "", "optional remarks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := c.grading()
	if err != nil {
		return err
	}
	resp, err := client.UploadGrade(c.authed(), &rpc.UploadGradeRequest{
		StudentID: *student,
		CourseID:  *course,
		Grade:     *grade,
		Semester:  *semester,
		Remarks:   *remarks,
	})
	if err != nil {
		return err
	}
	color.Green("  ✓ %s (%s)", resp.Message, resp.GradeID)
	return nil
}

func (c *cli) cmdGrades(args []string) error {
	student, err := studentFlag("grades", args)
	if err != nil {
		return err
	}
	client, err := c.grading()
	if err != nil {
		return err
	}
	resp, err := client.GetStudentGrades(c.authed(), &rpc.GetStudentGradesRequest{StudentID: student})
	if err != nil {
		return err
	}
	return printGrades(resp.Grades)
}

func (c *cli) cmdRoster(args []string) error {
	if err := needArgs(args, 1, "roster COURSE"); err != nil {
		return err
	}
	client, err := c.grading()
	if err != nil {
		return err
	}
	resp, err := client.GetCourseGrades(c.authed(), &rpc.GetCourseGradesRequest{CourseID: args[0]})
	if err != nil {
		return err
	}
	return printGrades(resp.Grades)
}

func printGrades(grades []rpc.GradeInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tCOURSE\tGRADE\tSEMESTER\tPOSTED\tREMARKS")
	for _, g := range grades {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", g.StudentID, g.CourseID, g.Grade, g.Semester, g.DatePosted, g.Remarks)
	}
	return w.Flush()
}

func (c *cli) cmdTranscript() error {
	client, err := c.grading()
	if err != nil {
		return err
	}
	resp, err := client.GetEnrolledCoursesWithGrades(c.authed(), &rpc.TranscriptRequest{})
	if err != nil {
		return err
	}
	color.New(color.FgCyan).Printf("Transcript for %s\n", resp.StudentName)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COURSE\tNAME\tENROLLED\tGRADE\tSEMESTER")
	for _, row := range resp.Courses {
		grade := color.HiBlackString("pending")
		if row.GradeReleased {
			grade = row.Grade
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.CourseID, row.CourseName, row.EnrollmentDate, grade, row.Semester)
	}
	return w.Flush()
}
