package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/types"
)

// Store inventory. Four relational stores and one graph store make up
// a district's footprint.
var RelationalStores = []string{"adb", "hcp1", "hcp2", "ids"}

// GraphStore is the property-graph store id
const GraphStore = "sp"

// DefaultSchema is the relational schema introspected when none is
// configured
const DefaultSchema = "public"

// DefaultFilterKey is the tenant discriminator column
const DefaultFilterKey = "district_id"

// DefaultGraphDepth bounds the neighborhood traversal from the
// district root node
const DefaultGraphDepth = 10

// IsRelational reports whether the store id names a relational store
func IsRelational(store string) bool {
	for _, s := range RelationalStores {
		if s == strings.ToLower(store) {
			return true
		}
	}
	return false
}

// Credentials for one relational store
type Credentials struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN renders the credentials as a pgx connection string
func (c Credentials) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func rolePrefix(role types.StoreRole) string {
	if role == types.StoreRoleTarget {
		return "CERT"
	}
	return "PROD"
}

// RelationalCredentials loads credentials for a relational store from
// the environment ({PROD|CERT}_{STORE}_{HOST|PORT|DATABASE|USER|PASSWORD}).
// A missing password is a configuration error; everything else has a
// conventional default.
func RelationalCredentials(role types.StoreRole, store string) (Credentials, error) {
	store = strings.ToLower(store)
	if !IsRelational(store) {
		return Credentials{}, errtag.Configuration.New("unknown relational store %q", store)
	}

	prefix := fmt.Sprintf("%s_%s", rolePrefix(role), strings.ToUpper(store))
	envSide := strings.ToLower(rolePrefix(role))

	creds := Credentials{
		Host:     envOr(prefix+"_HOST", fmt.Sprintf("%s-%s-rds.amazonaws.com", envSide, store)),
		Database: envOr(prefix+"_DATABASE", store+"_db"),
		User:     envOr(prefix+"_USER", defaultUser(role)),
		Password: os.Getenv(prefix + "_PASSWORD"),
	}

	port := envOr(prefix+"_PORT", "5432")
	p, err := strconv.Atoi(port)
	if err != nil {
		return Credentials{}, errtag.Configuration.New("invalid %s_PORT %q", prefix, port)
	}
	creds.Port = p

	if creds.Password == "" {
		return Credentials{}, errtag.Configuration.New("missing password for %s: %s_PASSWORD not set", store, prefix)
	}
	return creds, nil
}

func defaultUser(role types.StoreRole) string {
	if role == types.StoreRoleTarget {
		return "admin_user"
	}
	return "readonly_user"
}

// GraphCredentials for the Neo4j store
type GraphCredentials struct {
	URI      string
	User     string
	Password string
}

// Neo4jCredentials loads graph-store credentials from the environment
// (NEO4J_{PROD|CERT}_{URI|USER|PASSWORD})
func Neo4jCredentials(role types.StoreRole) (GraphCredentials, error) {
	prefix := "NEO4J_" + rolePrefix(role)
	envSide := strings.ToLower(rolePrefix(role))

	creds := GraphCredentials{
		URI:      envOr(prefix+"_URI", fmt.Sprintf("bolt://%s-graph-db.amazonaws.com:7687", envSide)),
		User:     envOr(prefix+"_USER", defaultGraphUser(role)),
		Password: os.Getenv(prefix + "_PASSWORD"),
	}
	if creds.Password == "" {
		return GraphCredentials{}, errtag.Configuration.New("missing %s_PASSWORD", prefix)
	}
	return creds, nil
}

func defaultGraphUser(role types.StoreRole) string {
	if role == types.StoreRoleTarget {
		return "admin"
	}
	return "readonly"
}

// Salt returns the process-wide anonymization salt. Absence is fatal
// at anonymization phase start.
func Salt() (string, error) {
	salt := os.Getenv("ANONYMIZATION_SALT")
	if salt == "" {
		return "", errtag.Configuration.New("ANONYMIZATION_SALT environment variable not set")
	}
	return salt, nil
}

// Descriptor builds a StoreDescriptor for a store id and role
func Descriptor(store string, role types.StoreRole) types.StoreDescriptor {
	kind := types.StoreKindRelational
	if strings.ToLower(store) == GraphStore {
		kind = types.StoreKindGraph
	}
	return types.StoreDescriptor{
		ID:   strings.ToLower(store),
		Kind: kind,
		Role: role,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
