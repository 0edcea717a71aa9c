package extract

import (
	"regexp"

	"github.com/poiesic/kbase/core"
)

// AttributeExtractor pulls one attribute value from the text around a mention.
// The first capture group is the value, or the whole match if there is none.
type AttributeExtractor struct {
	Name    string
	Pattern *regexp.Regexp
	Window  int
}

// Matcher recognizes one entity type.
type Matcher struct {
	Type core.EntityType
	// Keywords mark the neighbourhood in which Candidate tokens are entities.
	Keywords *regexp.Regexp
	// Candidate matches tokens that may name an entity.
	Candidate *regexp.Regexp
	// Window is the largest gap in bytes between a keyword and a candidate.
	Window int
	// Captures name an entity directly through their first capture group.
	Captures   []*regexp.Regexp
	Attributes []AttributeExtractor
}

// RelationRule turns a directional phrase between two mentions into an edge.
// The mention left of the phrase is the source unless Reverse is set.
type RelationRule struct {
	Type    core.RelationType
	Pattern *regexp.Regexp
	Reverse bool
	Window  int
}

const (
	identifier    = `[A-Za-z][A-Za-z0-9]*(?:[-_.][A-Za-z0-9]+)+|[A-Za-z]+[0-9]+[A-Za-z0-9]*`
	properName    = `[A-Z][A-Za-z0-9]*(?:[-_][A-Za-z0-9]+)*`
	defaultWindow = 40
	attrWindow    = 60
	relWindow     = 60
)

// DefaultMatchers returns the Server, Database, Application and Network matchers.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{
			Type:      core.EntityServer,
			Keywords:  regexp.MustCompile(`(?i)\b(?:servers?|hosts?|vms?|virtual machines?|nodes?|machines?)\b`),
			Candidate: regexp.MustCompile(`\b(?:` + identifier + `)\b`),
			Window:    defaultWindow,
			Attributes: []AttributeExtractor{
				{Name: "ip_address", Pattern: regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`), Window: attrWindow},
				{Name: "os", Pattern: regexp.MustCompile(`(?i)\b(windows server \d{4}(?: r2)?|rhel ?\d+(?:\.\d+)?|red hat enterprise linux \d+|ubuntu \d+\.\d+|centos \d+|debian \d+|aix \d+\.\d+|solaris \d+)\b`), Window: attrWindow},
				{Name: "cpu", Pattern: regexp.MustCompile(`(?i)\b(\d+)\s*(?:vcpus?|cores?|cpus?)\b`), Window: attrWindow},
				{Name: "memory_gb", Pattern: regexp.MustCompile(`(?i)\b(\d+)\s*gb\s+(?:of\s+)?(?:ram|memory)\b`), Window: attrWindow},
			},
		},
		{
			Type:      core.EntityDatabase,
			Keywords:  regexp.MustCompile(`(?i)\b(?:databases?|dbs?|schemas?|oracle|postgres(?:ql)?|mysql|sql server|mssql|mongodb|db2|mariadb|sybase)\b`),
			Candidate: regexp.MustCompile(`\b(?:` + identifier + `)\b`),
			Window:    defaultWindow,
			Captures: []*regexp.Regexp{
				regexp.MustCompile(`\b(` + properName + `|[a-z][a-z0-9]*[_0-9][A-Za-z0-9_-]*)\s+(?i:database|db|schema)\b`),
				regexp.MustCompile(`\b(?i:database|schema)\s+(` + properName + `)\b`),
			},
			Attributes: []AttributeExtractor{
				{Name: "engine", Pattern: regexp.MustCompile(`(?i)\b(oracle(?: \d+[a-z]?)?|postgres(?:ql)?(?: \d+)?|mysql(?: \d+(?:\.\d+)?)?|sql server(?: \d{4})?|mssql|mongodb|db2|mariadb|sybase)\b`), Window: attrWindow},
				{Name: "size", Pattern: regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?\s*(?:gb|tb))\b`), Window: attrWindow},
			},
		},
		{
			Type:      core.EntityApplication,
			Keywords:  regexp.MustCompile(`(?i)\b(?:applications?|apps?|services?|systems?|platforms?)\b`),
			Candidate: regexp.MustCompile(`\b(?:` + identifier + `|[A-Z][a-z0-9]+(?:[A-Z][A-Za-z0-9]*)+)\b`),
			Window:    defaultWindow,
			Captures: []*regexp.Regexp{
				regexp.MustCompile(`\b(` + properName + `)\s+(?i:application|app|service|system|platform)\b`),
				regexp.MustCompile(`\b(?i:application|app|service)\s+(` + properName + `)\b`),
			},
			Attributes: []AttributeExtractor{
				{Name: "version", Pattern: regexp.MustCompile(`(?i)\bv(?:ersion)?\s?(\d+(?:\.\d+)*)\b`), Window: attrWindow},
			},
		},
		{
			Type:      core.EntityNetwork,
			Keywords:  regexp.MustCompile(`(?i)\b(?:networks?|subnets?|vlans?|segments?|vpcs?|firewalls?|dmz)\b`),
			Candidate: regexp.MustCompile(`(?i)\b\d{1,3}(?:\.\d{1,3}){3}/\d{1,2}\b|\bvlan[ -]?\d+\b|\b(?:` + identifier + `)\b`),
			Window:    defaultWindow,
			Captures: []*regexp.Regexp{
				regexp.MustCompile(`\b((?i:vlan)[ -]?\d+)\b`),
			},
			Attributes: []AttributeExtractor{
				{Name: "cidr", Pattern: regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3}/\d{1,2})\b`), Window: attrWindow},
			},
		},
	}
}

// DefaultRelationRules returns the HOSTS, CONNECTS_TO and DEPENDS_ON rules.
func DefaultRelationRules() []RelationRule {
	return []RelationRule{
		{
			Type:    core.RelationHosts,
			Pattern: regexp.MustCompile(`(?i)\b(?:hosts|is hosting|hosting)\b`),
			Window:  relWindow,
		},
		{
			Type:    core.RelationHosts,
			Pattern: regexp.MustCompile(`(?i)\b(?:is hosted on|hosted on|runs on|running on|is deployed on|deployed on|installed on|resides on)\b`),
			Reverse: true,
			Window:  relWindow,
		},
		{
			Type:    core.RelationConnects,
			Pattern: regexp.MustCompile(`(?i)\b(?:connects to|connected to|communicates with|talks to|sends data to)\b`),
			Window:  relWindow,
		},
		{
			Type:    core.RelationDependsOn,
			Pattern: regexp.MustCompile(`(?i)\b(?:depends on|is dependent on|dependent on|relies on|requires)\b`),
			Window:  relWindow,
		},
	}
}

// ignored names are never entities on their own.
var ignored = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "our": {}, "their": {}, "each": {}, "every": {},
	"main": {}, "primary": {}, "new": {}, "old": {}, "legacy": {}, "production": {}, "core": {},
	"oracle": {}, "postgres": {}, "postgresql": {}, "mysql": {}, "mssql": {}, "mongodb": {}, "db2": {},
	"mariadb": {}, "sybase": {}, "sql": {},
	"e.g": {}, "i.e": {}, "etc": {}, "x86": {}, "x64": {}, "ipv4": {}, "ipv6": {}, "tcp": {}, "udp": {},
	"http": {}, "https": {},
}

var versionLike = regexp.MustCompile(`(?i)^v\d+(?:\.\d+)*$`)

func isIgnored(name string, lower string) bool {
	if _, ok := ignored[lower]; ok {
		return true
	}
	return versionLike.MatchString(name)
}
