package match

// nicknames.go holds the static formal-name/nickname equivalence table.
//
// The table is bidirectional: "Robert" matches "Bob" and "Bob" matches
// "Robert". It is built once at init and never mutated, so it is safe to
// share across concurrent tenant imports.

import "strings"

// formalNicknames maps a formal first name to its common short forms.
var formalNicknames = map[string][]string{
	"albert":      {"al", "bert"},
	"alexander":   {"alex", "sandy"},
	"alexandra":   {"alex", "sandra", "lexi"},
	"andrew":      {"andy", "drew"},
	"anthony":     {"tony"},
	"barbara":     {"barb", "babs"},
	"benjamin":    {"ben", "benny"},
	"catherine":   {"cathy", "cat", "kate", "katie"},
	"charles":     {"charlie", "chuck", "chas"},
	"christina":   {"chris", "tina", "christy"},
	"christopher": {"chris", "kit"},
	"daniel":      {"dan", "danny"},
	"david":       {"dave", "davey"},
	"deborah":     {"deb", "debbie"},
	"donald":      {"don", "donny"},
	"dorothy":     {"dot", "dottie"},
	"edward":      {"ed", "eddie", "ted", "ned"},
	"eleanor":     {"ellie", "nell"},
	"elizabeth":   {"liz", "beth", "betsy", "betty", "eliza", "lizzie"},
	"frances":     {"fran", "frannie"},
	"frederick":   {"fred", "freddie"},
	"gerald":      {"jerry", "gerry"},
	"gregory":     {"greg"},
	"henry":       {"hank", "harry"},
	"jacqueline":  {"jackie"},
	"james":       {"jim", "jimmy", "jamie"},
	"jennifer":    {"jen", "jenny"},
	"jessica":     {"jess", "jessie"},
	"john":        {"jack", "johnny"},
	"jonathan":    {"jon", "johnny"},
	"joseph":      {"joe", "joey"},
	"joshua":      {"josh"},
	"katherine":   {"kate", "katie", "kathy", "kat"},
	"kathleen":    {"kathy", "kate"},
	"kenneth":     {"ken", "kenny"},
	"kimberly":    {"kim"},
	"lawrence":    {"larry"},
	"leonard":     {"leo", "lenny"},
	"margaret":    {"peggy", "meg", "maggie", "marge", "midge"},
	"matthew":     {"matt"},
	"michael":     {"mike", "mickey"},
	"nancy":       {"nan"},
	"nicholas":    {"nick"},
	"pamela":      {"pam"},
	"patricia":    {"pat", "patty", "tricia", "trish"},
	"patrick":     {"pat", "paddy"},
	"peter":       {"pete"},
	"philip":      {"phil"},
	"raymond":     {"ray"},
	"rebecca":     {"becky", "becca"},
	"richard":     {"rich", "rick", "dick", "richie"},
	"robert":      {"rob", "bob", "bobby", "robbie"},
	"ronald":      {"ron", "ronnie"},
	"russell":     {"russ"},
	"samuel":      {"sam", "sammy"},
	"sandra":      {"sandy"},
	"stephen":     {"steve"},
	"steven":      {"steve"},
	"susan":       {"sue", "susie", "suzy"},
	"theodore":    {"ted", "teddy", "theo"},
	"thomas":      {"tom", "tommy"},
	"timothy":     {"tim", "timmy"},
	"victoria":    {"vicky", "tori"},
	"vincent":     {"vince", "vinny"},
	"walter":      {"walt", "wally"},
	"william":     {"will", "bill", "billy", "willie", "liam"},
	"zachary":     {"zach", "zack"},
}

// nicknamePairs indexes every formal/nickname pair in both directions.
var nicknamePairs = buildNicknamePairs()

func buildNicknamePairs() map[string]bool {
	pairs := make(map[string]bool, len(formalNicknames)*4)
	for formal, nicks := range formalNicknames {
		for _, nick := range nicks {
			pairs[formal+"\x00"+nick] = true
			pairs[nick+"\x00"+formal] = true
		}
	}
	return pairs
}

// isNicknamePair reports whether the two first names appear together in the
// nickname table, in either direction. Comparison is case-insensitive.
func isNicknamePair(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return nicknamePairs[a+"\x00"+b]
}
