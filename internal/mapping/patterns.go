package mapping

// patterns.go holds the static header-recognition tables.
//
// Every legacy CRM names its export columns differently: Raiser's Edge style
// (CnBio_ID, KEYID), Banner style (CONSTNM), plain spreadsheets
// (Donor ID, First Name), and everything in between. The regex table below
// captures the conventions seen in real exports, matched against the
// normalized (lowercased, punctuation-stripped) column name.
//
// The tables are immutable after init and safe to share across concurrent
// tenant imports.

import "regexp"

// fieldPatternSource maps canonical field names to regex patterns over
// normalized column names. A match scores just below an exact match so
// a literal canonical header always wins.
var fieldPatternSource = map[string][]string{
	"externalId": {
		`^(key|const(ituent)?|donor|record|account|acct|cust(omer)?|member|legacy|lookup|alt|ext(ernal)?|gift|contact)?id(ent(ifier)?|number|num|no)?$`,
		`^cnbioid$`,
		`^(key|const(ituent)?|donor)(key|code|ref)$`,
	},
	"constituentExternalId": {
		`^(const(ituent)?|donor|member|cust(omer)?)(key)?id$`,
		`^(parent|owner)(record)?id$`,
	},
	"firstName": {
		`^(first|fst|f|given)(name|nm|n)$`,
		`^forename$`,
	},
	"lastName": {
		`^(last|lst|l|family)(name|nm|n)$`,
		`^surname$`,
	},
	"middleName": {
		`^(middle|mid|m)(name|nm|n|initial|init)$`,
	},
	"prefix": {
		`^(name)?(prefix|title|salutation|sal)$`,
	},
	"suffix": {
		`^(name)?suffix$`,
	},
	"email": {
		`^e?mail(address|addr)?\d*$`,
		`^(primary|preferred|home|work)email$`,
	},
	"phone": {
		`^(phone|tel(ephone)?|mobile|cell)(number|num|no)?\d*$`,
		`^(home|work|primary)phone$`,
	},
	"addressLine1": {
		`^(street|addr(ess)?)(line)?1?$`,
		`^(mailing|home|preferred)addr(ess)?1?$`,
	},
	"addressLine2": {
		`^(street|addr(ess)?)(line)?2$`,
		`^(apt|unit|suite)$`,
	},
	"city": {
		`^(city|town|municipality)$`,
	},
	"state": {
		`^(state|province|region|st)$`,
	},
	"postalCode": {
		`^(zip|postal)(code)?$`,
		`^zip\d*$`,
	},
	"country": {
		`^country(code)?$`,
	},
	"constituentType": {
		`^(const(ituent)?|donor|record)(type|category|cat)$`,
	},
	"classYear": {
		`^(class|grad(uation)?)(year|yr)?$`,
		`^yeargraduated$`,
	},
	"schoolCollege": {
		`^(school|college|division)(name)?$`,
	},
	"estimatedCapacity": {
		`^(estimated|est)?(capacity|wealth)(rating|estimate|est)?$`,
		`^majorgiftcapacity$`,
	},
	"capacitySource": {
		`^(capacity|wealth|screening)(source|vendor)$`,
	},
	"assignedOfficerId": {
		`^(assigned)?(officer|solicitor|manager)(id)?$`,
		`^giftofficerid?$`,
	},
	"portfolioTier": {
		`^(portfolio)?(tier|level|segment)$`,
	},
	"amount": {
		`^(gift|donation|don|payment|pay|pledge|trans(action)?)?(amount|amt)$`,
		`^(gift|donation)(value|total)$`,
	},
	"giftDate": {
		`^(gift|donation|don|payment|pay|trans(action)?|received)(date|dt)$`,
		`^date(received|ofgift)$`,
	},
	"giftType": {
		`^(gift|donation|payment|tender)(type|method)$`,
	},
	"fundName": {
		`^fund(name|description|desc)?$`,
		`^designation(name)?$`,
	},
	"fundCode": {
		`^(fund|designation)(code|id)$`,
	},
	"campaign": {
		`^campaign(name|code)?$`,
	},
	"appeal": {
		`^appeal(name|code)?$`,
		`^solicitation(code)?$`,
	},
	"recognitionAmount": {
		`^(recognition|credit|soft(credit)?)(amount|amt)$`,
	},
	"isAnonymous": {
		`^(is)?anon(ymous)?(flag)?$`,
	},
	"isMatching": {
		`^(is)?match(ing)?(gift)?(flag)?$`,
	},
	"matchingCompany": {
		`^match(ing)?(gift)?(company|employer|org)$`,
	},
	"tributeType": {
		`^tribute(type)$`,
		`^(inmemory|inhonor)(of)?$`,
	},
	"tributeName": {
		`^tribute(name|e)$`,
		`^(memorial|honoree)(name)?$`,
	},
	"contactDate": {
		`^(contact|activity|action|touch|visit|call|meeting)(date|dt)$`,
		`^dateofcontact$`,
	},
	"contactType": {
		`^(contact|activity|action|touch)(type|method)$`,
	},
	"subject": {
		`^(subject|topic|purpose|re)$`,
	},
	"notes": {
		`^(notes?|comments?|description|summary|narrative)$`,
	},
	"outcome": {
		`^(outcome|result|status|disposition)$`,
	},
	"nextAction": {
		`^next(action|step|steps)$`,
		`^followup(action)?$`,
	},
	"nextActionDate": {
		`^next(action|step)(date|due)$`,
		`^followupdate$`,
	},
}

// fieldPatterns is the compiled form of fieldPatternSource, built once at
// init and never mutated.
var fieldPatterns = compilePatterns()

func compilePatterns() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(fieldPatternSource))
	for field, sources := range fieldPatternSource {
		compiled := make([]*regexp.Regexp, 0, len(sources))
		for _, src := range sources {
			compiled = append(compiled, regexp.MustCompile(src))
		}
		out[field] = compiled
	}
	return out
}

// matchesPattern reports whether the normalized column name matches one of
// the canonical field's known legacy naming patterns.
func matchesPattern(field, normalizedColumn string) bool {
	for _, re := range fieldPatterns[field] {
		if re.MatchString(normalizedColumn) {
			return true
		}
	}
	return false
}
