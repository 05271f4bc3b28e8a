// ABOUTME: Builds identity, catalog, enrollment and grading hosts from configuration
// ABOUTME: Shares databases and outgoing connections between services in one process

package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/catalog"
	"github.com/2389/portal-core/internal/config"
	"github.com/2389/portal-core/internal/enrollment"
	"github.com/2389/portal-core/internal/grading"
	"github.com/2389/portal-core/internal/identity"
	"github.com/2389/portal-core/internal/rpc"
	"github.com/2389/portal-core/internal/server"
	"github.com/2389/portal-core/internal/store"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Service names accepted by portald serve.
const (
	ServiceIdentity   = "identity"
	ServiceCatalog    = "catalog"
	ServiceEnrollment = "enrollment"
	ServiceGrading    = "grading"
)

// AllServices lists every service in start order.
var AllServices = []string{ServiceIdentity, ServiceCatalog, ServiceEnrollment, ServiceGrading}

// ErrUnknownService is returned for a name outside AllServices.
var ErrUnknownService = errors.New("unknown service")

// Options configures a Runtime.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Tailnet *server.Tailnet

	// DialOptions are appended to every outgoing connection.
	DialOptions []grpc.DialOption
	// TokenOptions configure every local validator and the identity issuer.
	TokenOptions []auth.LocalOption
}

// Runtime owns resources shared by the services of one process.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   Options

	mu    sync.Mutex
	dbs   map[string]*store.DB
	conns map[string]*grpc.ClientConn
}

func NewRuntime(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:    opts.Config,
		logger: logger,
		opts:   opts,
		dbs:    make(map[string]*store.DB),
		conns:  make(map[string]*grpc.ClientConn),
	}
}

// Build assembles the named service.
func (r *Runtime) Build(ctx context.Context, name string) (*server.Server, error) {
	switch name {
	case ServiceIdentity:
		return r.buildIdentity(ctx)
	case ServiceCatalog:
		return r.buildCatalog(ctx)
	case ServiceEnrollment:
		return r.buildEnrollment(ctx)
	case ServiceGrading:
		return r.buildGrading(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
}

// RunAll builds every named service and runs them until ctx is canceled or
// one of them fails. Shared resources are closed afterwards.
func (r *Runtime) RunAll(ctx context.Context, names []string) error {
	return r.runAll(ctx, names, func(ctx context.Context, _ string, srv *server.Server) error {
		return srv.Run(ctx)
	})
}

type serveFunc func(ctx context.Context, name string, srv *server.Server) error

func (r *Runtime) runAll(ctx context.Context, names []string, serve serveFunc) error {
	defer func() {
		if err := r.Close(); err != nil {
			r.logger.Warn("closing shared resources", "error", err)
		}
	}()

	servers := make([]*server.Server, 0, len(names))
	for _, name := range names {
		srv, err := r.Build(ctx, name)
		if err != nil {
			return fmt.Errorf("building %s: %w", name, err)
		}
		servers = append(servers, srv)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		name := names[i]
		g.Go(func() error {
			if err := serve(gctx, name, srv); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases databases and client connections.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for addr, conn := range r.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection to %s: %w", addr, err))
		}
	}
	for key, db := range r.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database %s: %w", key, err))
		}
	}
	clear(r.conns)
	clear(r.dbs)
	return errors.Join(errs...)
}

// database opens cfg once per driver and DSN.
func (r *Runtime) database(ctx context.Context, cfg config.DatabaseConfig) (*store.DB, error) {
	key := cfg.Driver + "|" + cfg.DSN

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[key]; ok {
		return db, nil
	}
	db, err := store.Open(ctx, store.Options{Driver: cfg.Driver, DSN: cfg.DSN, MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		return nil, err
	}
	r.dbs[key] = db
	return db, nil
}

// dial connects to addr once. Calls are bounded by server.call_timeout.
func (r *Runtime) dial(addr string) (*grpc.ClientConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[addr]; ok {
		return conn, nil
	}

	var opts []grpc.DialOption
	if r.opts.Tailnet != nil {
		opts = append(opts, grpc.WithContextDialer(r.opts.Tailnet.Dial))
	}
	opts = append(opts, r.opts.DialOptions...)

	conn, err := rpc.Dial(addr, r.cfg.Server.CallTimeout, opts...)
	if err != nil {
		return nil, err
	}
	r.conns[addr] = conn
	return conn, nil
}

func (r *Runtime) localValidator() (*auth.LocalValidator, error) {
	return auth.NewLocalValidator([]byte(r.cfg.Auth.JWTSecret), r.opts.TokenOptions...)
}

// validator returns the configured backend for a service other than identity.
func (r *Runtime) validator() (auth.Validator, error) {
	if r.cfg.Auth.Validation != config.ValidationDelegated {
		return r.localValidator()
	}
	conn, err := r.dial(r.cfg.Auth.IdentityAddr)
	if err != nil {
		return nil, fmt.Errorf("token authority: %w", err)
	}
	return auth.NewDelegatedValidator(rpc.NewIdentityClient(conn), r.cfg.Auth.ValidateTimeout), nil
}

func (r *Runtime) host(name, grpcAddr, httpAddr string, v auth.Validator, public []string, ready func(context.Context) error) *server.Server {
	return server.New(server.Options{
		Name:          name,
		GRPCAddr:      grpcAddr,
		HTTPAddr:      httpAddr,
		Tuning:        r.cfg.Server,
		Validator:     v,
		PublicMethods: public,
		Ready:         ready,
		Tailnet:       r.opts.Tailnet,
		Logger:        r.logger,
	})
}

func (r *Runtime) buildIdentity(ctx context.Context) (*server.Server, error) {
	cfg := r.cfg.Identity
	db, err := r.database(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	users, err := store.NewUserStore(ctx, db)
	if err != nil {
		return nil, err
	}
	// The identity service is the authority and always validates locally.
	issuer, err := r.localValidator()
	if err != nil {
		return nil, err
	}

	svc := identity.New(identity.Options{
		Store:      users,
		Issuer:     issuer,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
		Logger:     r.logger,
	})
	srv := r.host(ServiceIdentity, cfg.GRPCAddr, cfg.HTTPAddr, issuer, identity.PublicMethods, users.Ping)
	rpc.RegisterIdentityServer(srv.Registrar(), identity.NewServer(svc, r.logger))
	return srv, nil
}

func (r *Runtime) buildCatalog(ctx context.Context) (*server.Server, error) {
	cfg := r.cfg.Catalog
	db, err := r.database(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	courses, err := store.NewCourseStore(ctx, db)
	if err != nil {
		return nil, err
	}
	c := catalog.New(courses, r.logger)
	if err := c.Seed(ctx, seedCourses(cfg.Courses)); err != nil {
		return nil, fmt.Errorf("seeding catalog: %w", err)
	}

	v, err := r.validator()
	if err != nil {
		return nil, err
	}
	srv := r.host(ServiceCatalog, cfg.GRPCAddr, cfg.HTTPAddr, v, catalog.PublicMethods, courses.Ping)
	rpc.RegisterCatalogServer(srv.Registrar(), catalog.NewServer(c, r.logger))
	return srv, nil
}

func (r *Runtime) buildEnrollment(ctx context.Context) (*server.Server, error) {
	cfg := r.cfg.Enrollment
	db, err := r.database(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	courses, err := store.NewCourseStore(ctx, db)
	if err != nil {
		return nil, err
	}

	v, err := r.validator()
	if err != nil {
		return nil, err
	}
	srv := r.host(ServiceEnrollment, cfg.GRPCAddr, cfg.HTTPAddr, v, nil, courses.Ping)
	rpc.RegisterEnrollmentServer(srv.Registrar(), enrollment.NewServer(enrollment.New(courses, r.logger), r.logger))
	return srv, nil
}

func (r *Runtime) buildGrading(ctx context.Context) (*server.Server, error) {
	cfg := r.cfg.Grading
	gradesDB, err := r.database(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	grades, err := store.NewGradeStore(ctx, gradesDB)
	if err != nil {
		return nil, err
	}
	enrollmentDB, err := r.database(ctx, cfg.EnrollmentDatabase)
	if err != nil {
		return nil, err
	}
	courses, err := store.NewCourseStore(ctx, enrollmentDB)
	if err != nil {
		return nil, err
	}
	conn, err := r.dial(cfg.EnrollmentAddr)
	if err != nil {
		return nil, fmt.Errorf("enrollment service: %w", err)
	}

	v, err := r.validator()
	if err != nil {
		return nil, err
	}
	ready := func(ctx context.Context) error {
		return errors.Join(grades.Ping(ctx), courses.Ping(ctx))
	}

	g := grading.NewGrades(grades, courses, r.logger)
	agg := grading.NewAggregator(grading.NewRemoteEnrollments(rpc.NewEnrollmentClient(conn)), grades)
	srv := r.host(ServiceGrading, cfg.GRPCAddr, cfg.HTTPAddr, v, nil, ready)
	rpc.RegisterGradingServer(srv.Registrar(), grading.NewServer(g, agg, r.logger))
	return srv, nil
}

func seedCourses(seeds []config.CourseSeed) []store.Course {
	out := make([]store.Course, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, store.Course{
			ID:              s.ID,
			Name:            s.Name,
			Capacity:        s.Capacity,
			Enrolled:        s.Enrolled,
			Open:            s.Open,
			FacultyID:       s.FacultyID,
			FacultyUsername: s.FacultyUsername,
		})
	}
	return out
}

// ParseServices expands "all" and checks names.
func ParseServices(args []string) ([]string, error) {
	if len(args) == 0 || slices.Contains(args, "all") {
		return slices.Clone(AllServices), nil
	}
	seen := make(map[string]bool, len(args))
	out := make([]string, 0, len(args))
	for _, a := range args {
		if !slices.Contains(AllServices, a) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownService, a)
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}
