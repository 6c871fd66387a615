package category

// builtinTaxonomy compiles the default vocabulary and phrase patterns for
// each abuse category. Sites extend it at runtime through AddPattern.
func builtinTaxonomy() map[string]*patternSet {
	return map[string]*patternSet{
		"harassment": newPatternSet(
			[]string{
				"idiot", "stupid", "moron", "loser", "pathetic", "worthless",
				"disgusting", "horrible", "terrible", "awful", "useless", "trash",
				"garbage", "scum", "pig", "animal", "freak", "weirdo",
			},
			[]string{
				`you\s+(are|r)\s+(so\s+)?(stupid|dumb|idiotic|pathetic)`,
				`kill\s+yourself`,
				`go\s+die`,
				`nobody\s+likes\s+you`,
				`you\s+should\s+die`,
				`end\s+your\s+life`,
				`waste\s+of\s+space`,
				`you\s+suck\s+at\s+everything`,
			},
			SeverityHigh,
		),
		"hate_speech": newPatternSet(
			[]string{
				"racist", "bigot", "nazi", "supremacist", "fascist",
				"terrorist", "radical", "extremist", "discrimination",
			},
			[]string{
				`all\s+\w+\s+are\s+(bad|evil|stupid|inferior)`,
				`i\s+hate\s+all\s+\w+`,
				`\w+\s+people\s+are\s+(inferior|superior|dangerous)`,
				`death\s+to\s+all\s+\w+`,
				`\w+\s+don't\s+belong\s+here`,
				`go\s+back\s+to\s+your\s+country`,
			},
			SeverityCritical,
		),
		"spam": newPatternSet(
			[]string{
				"buy now", "click here", "free money", "guaranteed win",
				"limited time", "act now", "special offer", "earn fast",
				"work from home", "make money", "get rich", "no experience",
				"miracle cure", "lose weight fast",
			},
			[]string{
				`click\s+here\s+to\s+(win|earn|get)`,
				`free\s+\$\d+`,
				`guaranteed\s+(income|money|win)`,
				`work\s+from\s+home\s+\$\d+`,
				`(bit\.ly|tinyurl|goo\.gl|t\.co)/\w+`,
				`earn\s+\$\d+\s+per\s+(day|hour|week)`,
				`lose\s+\d+\s+pounds\s+in\s+\d+\s+days`,
			},
			SeverityLow,
		),
		"threats": newPatternSet(
			[]string{
				"kill", "murder", "destroy", "hurt", "harm", "attack",
				"violence", "weapon", "bomb", "shoot", "stab", "beat",
				"torture", "eliminate", "annihilate", "crush", "demolish",
			},
			[]string{
				`i\s+will\s+(kill|hurt|harm|destroy)`,
				`gonna\s+(kill|hurt|destroy|attack)`,
				`watch\s+your\s+back`,
				`you\s+(will|gonna)\s+pay`,
				`i\s+know\s+where\s+you\s+live`,
				`meet\s+me\s+(outside|irl)`,
				`i'll\s+find\s+you`,
				`you're\s+dead`,
			},
			SeverityCritical,
		),
		"cyberbullying": newPatternSet(
			[]string{
				"ugly", "fat", "weird", "freak", "reject", "outcast",
				"loner", "embarrassing", "shameful", "cringe", "pathetic",
				"failure", "disappointment", "nobody", "worthless",
			},
			[]string{
				`everyone\s+hates\s+you`,
				`you\s+have\s+no\s+friends`,
				`why\s+don't\s+you\s+just\s+leave`,
				`nobody\s+wants\s+you\s+here`,
				`you're\s+such\s+a\s+(loser|failure)`,
				`go\s+back\s+to\s+your\s+cave`,
				`you\s+don't\s+belong`,
			},
			SeverityHigh,
		),
		"sexual_harassment": newPatternSet(
			[]string{
				"sexy", "hot", "beautiful", "gorgeous", "attractive",
			},
			[]string{
				`send\s+me\s+(pics|photos)`,
				`what\s+are\s+you\s+wearing`,
				`you\s+look\s+(hot|sexy)`,
				`wanna\s+(hook\s+up|meet)`,
				`dtf\?`,
				`netflix\s+and\s+chill`,
			},
			SeverityHigh,
		),
	}
}
