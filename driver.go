package dbcore

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// TLSShape is the channel a driver accepts transport-security directives on.
// Drivers disagree: some read sslmode straight from the URL, some want a
// dedicated keyword, some want a TLS context object, and some cannot express
// transport security at all. The shape is declared once per driver; the
// adapter never assumes one driver's shape is universal.
type TLSShape int

const (
	// ShapeEmbeddedURL: the sslmode directive stays in the DSN.
	ShapeEmbeddedURL TLSShape = iota + 1

	// ShapeKeywordOption: the directive becomes a driver-specific keyword
	// (and the sslmode key must not leak through).
	ShapeKeywordOption

	// ShapeTLSContext: the directive becomes a *tls.Config handed to the
	// driver out of band; the sslmode key is stripped from the DSN.
	ShapeTLSContext

	// ShapeUnsupported: the driver has no transport-security channel.
	// A directive aimed at it is a startup configuration error.
	ShapeUnsupported
)

func (s TLSShape) String() string {
	switch s {
	case ShapeEmbeddedURL:
		return "embedded-url"
	case ShapeKeywordOption:
		return "keyword-option"
	case ShapeTLSContext:
		return "tls-context"
	case ShapeUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Registered driver identifiers.
const (
	DriverPgx    = "pgx"
	DriverPq     = "pq"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Driver declares a transport driver's capabilities.
type Driver struct {
	Name    string
	Shape   TLSShape
	Schemes []string
}

var drivers = map[string]Driver{
	DriverPgx:    {Name: DriverPgx, Shape: ShapeTLSContext, Schemes: []string{"postgres", "postgresql"}},
	DriverPq:     {Name: DriverPq, Shape: ShapeEmbeddedURL, Schemes: []string{"postgres", "postgresql"}},
	DriverMySQL:  {Name: DriverMySQL, Shape: ShapeKeywordOption, Schemes: []string{"mysql"}},
	DriverSQLite: {Name: DriverSQLite, Shape: ShapeUnsupported, Schemes: []string{"sqlite"}},
}

// LookupDriver returns the declared capabilities of a registered driver.
func LookupDriver(name string) (Driver, bool) {
	d, ok := drivers[name]
	return d, ok
}

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Args is the driver-specific realization of a Descriptor.
//
// The mapping Descriptor -> Args is pure: one Descriptor produces different
// Args depending on the active driver, and building Args has no side
// effects.
type Args struct {
	// Driver is the registered driver identifier the Args were built for.
	Driver string

	// DSN is the final connection string handed to the driver. For
	// keyword-option drivers the security keyword is already embedded in
	// driver syntax; for tls-context drivers the sslmode key is stripped.
	DSN string

	// TLSConfig is non-nil only for tls-context drivers with a directive
	// that enables TLS.
	TLSConfig *tls.Config

	// TLSExplicit reports whether the Descriptor carried an sslmode
	// directive at all. When false, the driver's own defaults apply.
	TLSExplicit bool
}

// BuildArgs maps a Descriptor onto the argument shape the named driver
// accepts. A directive the driver cannot express fails here, at startup,
// instead of surfacing as a runtime connect failure.
func BuildArgs(desc *Descriptor, driverName string) (*Args, error) {
	if desc == nil {
		return nil, newError(KindNotConfigured, "dbcore: no descriptor (database not configured)", nil)
	}

	drv, ok := drivers[driverName]
	if !ok {
		return nil, newError(KindConfig, fmt.Sprintf("dbcore: unknown driver %q", driverName), nil)
	}

	sslMode, hasSSL := desc.Param("sslmode")
	if hasSSL {
		if drv.Shape == ShapeUnsupported {
			return nil, newError(KindConfig,
				fmt.Sprintf("dbcore: driver %q cannot express transport security (remove sslmode=%s or pick another driver)", drv.Name, sslMode), nil)
		}
		if !slices.Contains(sslModes, sslMode) {
			return nil, newError(KindConfig, fmt.Sprintf("dbcore: unknown sslmode %q", sslMode), nil)
		}
	}

	if !slices.Contains(drv.Schemes, desc.Scheme) {
		return nil, newError(KindConfig,
			fmt.Sprintf("dbcore: scheme %q is not served by driver %q", desc.Scheme, drv.Name), nil)
	}

	switch drv.Shape {
	case ShapeEmbeddedURL:
		return &Args{Driver: drv.Name, DSN: desc.URL(), TLSExplicit: hasSSL}, nil

	case ShapeKeywordOption:
		dsn, err := keywordOptionDSN(desc, sslMode, hasSSL)
		if err != nil {
			return nil, err
		}
		return &Args{Driver: drv.Name, DSN: dsn, TLSExplicit: hasSSL}, nil

	case ShapeTLSContext:
		args := &Args{Driver: drv.Name, TLSExplicit: hasSSL}
		if hasSSL {
			args.TLSConfig = tlsContextFor(sslMode, desc.Host)
		}
		stripped := *desc
		stripped.Params = desc.withoutParam("sslmode")
		args.DSN = stripped.URL()
		return args, nil

	default:
		return nil, newError(KindConfig,
			fmt.Sprintf("dbcore: driver %q has no usable argument shape", drv.Name), nil)
	}
}

// keywordOptionDSN renders a MySQL-syntax DSN. The sslmode directive is
// translated to the driver's tls keyword; passing sslmode itself would be
// rejected by the driver at construction time.
func keywordOptionDSN(desc *Descriptor, sslMode string, hasSSL bool) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = desc.Username
	cfg.Passwd = desc.Password
	cfg.Net = "tcp"
	cfg.Addr = desc.Host + ":" + strconv.Itoa(desc.Port)
	cfg.DBName = desc.Database

	if hasSSL {
		switch sslMode {
		case "disable":
			cfg.TLSConfig = "false"
		case "allow", "prefer":
			cfg.TLSConfig = "preferred"
		case "require":
			cfg.TLSConfig = "skip-verify"
		case "verify-ca", "verify-full":
			cfg.TLSConfig = "true"
		}
	}

	for _, p := range desc.withoutParam("sslmode") {
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params[p.Key] = p.Value
	}

	return cfg.FormatDSN(), nil
}

// tlsContextFor builds the TLS context object for drivers that accept one.
// A nil result means TLS is explicitly disabled.
func tlsContextFor(sslMode, host string) *tls.Config {
	switch sslMode {
	case "disable":
		return nil
	case "verify-ca", "verify-full":
		return &tls.Config{ServerName: host}
	default: // allow, prefer, require: encrypt without certificate verification
		return &tls.Config{ServerName: host, InsecureSkipVerify: true}
	}
}
