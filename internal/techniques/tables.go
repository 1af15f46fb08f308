package techniques

// NewDefaultRegistry returns a registry populated with the built-in
// technique tables. A production deployment would register many more
// (20+, per spec §1's scope note); these cover the system's own test
// scenarios (six_hats, convergence) plus a representative spread of the
// remaining archetypes (sequential, generative, provocation-based).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range []Handler{
		sixHats(),
		scamper(),
		randomEntry(),
		poProvocation(),
		conceptExtraction(),
		convergenceHandler(),
	} {
		r.Register(h)
	}
	return r
}

func sixHats() *TableHandler {
	return &TableHandler{
		id:          "six_hats",
		name:        "Six Thinking Hats",
		emoji:       "🎩",
		description: "Examine a problem through six parallel perspectives in sequence.",
		steps: []StepInfo{
			stepInfo("Blue Hat — Process", "meta-cognition", "🔵", "Frame the thinking process and desired outcome."),
			stepInfo("White Hat — Facts", "information", "⚪", "Gather the facts and data available."),
			stepInfo("Red Hat — Feelings", "emotion", "🔴", "Surface gut reactions and emotional responses."),
			stepInfo("Black Hat — Caution", "risk", "⚫", "Identify risks, weaknesses, and reasons for caution."),
			stepInfo("Yellow Hat — Benefits", "optimism", "🟡", "Identify benefits and value in the proposal."),
			stepInfo("Green Hat — Creativity", "generation", "🟢", "Generate new ideas and alternatives."),
		},
		guidance: []string{
			"{problem}: state what kind of thinking this session needs and in what order.",
			"{problem}: list the facts you know and the facts you need.",
			"{problem}: what's your immediate emotional reaction, no justification needed?",
			"{problem}: what could go wrong, and why might this fail?",
			"{problem}: what's valuable here, even if it isn't obvious yet?",
			"{problem}: generate alternatives without judging them yet.",
		},
		requiredFields: []FieldCheck{
			{Field: "hatColor", Kind: KindString, Required: false},
		},
	}
}

func scamper() *TableHandler {
	names := []string{"Substitute", "Combine", "Adapt", "Modify", "Put to other use", "Eliminate", "Reverse"}
	focuses := []string{"substitution", "combination", "adaptation", "modification", "repurposing", "elimination", "inversion"}
	steps := make([]StepInfo, len(names))
	guidance := make([]string, len(names))
	for i, n := range names {
		steps[i] = stepInfo(n, focuses[i], "🔧", n+" some element of the problem.")
		guidance[i] = "{problem}: apply \"" + n + "\" — what changes?"
	}
	return &TableHandler{
		id:          "scamper",
		name:        "SCAMPER",
		emoji:       "🔧",
		description: "Apply seven transformation prompts to an existing solution.",
		steps:       steps,
		guidance:    guidance,
		requiredFields: []FieldCheck{
			{Field: "scamperAction", Kind: KindString, Required: false},
		},
	}
}

func randomEntry() *TableHandler {
	return &TableHandler{
		id:          "random_entry",
		name:        "Random Entry",
		emoji:       "🎲",
		description: "Force association between the problem and an unrelated stimulus.",
		steps: []StepInfo{
			stepInfo("Pick a stimulus", "stimulus", "🎲", "Introduce a random, unrelated word or object."),
			stepInfo("Force connections", "association", "🔗", "List every connection between the stimulus and the problem."),
			stepInfo("Harvest ideas", "synthesis", "💡", "Convert the strongest connections into concrete ideas."),
		},
		guidance: []string{
			"{problem}: name a random word unconnected to the problem.",
			"{problem}: force at least five connections to the stimulus.",
			"{problem}: which connection suggests a workable idea?",
		},
		requiredFields: []FieldCheck{
			{Field: "randomStimulus", Kind: KindString, Required: false},
		},
	}
}

func poProvocation() *TableHandler {
	return &TableHandler{
		id:          "po",
		name:        "Provocation (Po)",
		emoji:       "⚡",
		description: "State a deliberately unreasonable provocation and extract its movement value.",
		steps: []StepInfo{
			stepInfo("State the provocation", "provocation", "⚡", "State a Po: an intentionally unreasonable statement."),
			stepInfo("Extract movement", "movement", "➡️", "Move from the provocation toward a useful idea, suspending judgment."),
			stepInfo("Land the idea", "landing", "🛬", "Convert the movement into a grounded, workable idea."),
		},
		guidance: []string{
			"{problem}: Po — state an unreasonable provocation about this problem.",
			"{problem}: what does the provocation suggest, however impractical?",
			"{problem}: what workable idea can you extract from that movement?",
		},
		requiredFields: []FieldCheck{
			{Field: "provocation", Kind: KindString, Required: false},
		},
	}
}

func conceptExtraction() *TableHandler {
	return &TableHandler{
		id:          "concept_extraction",
		name:        "Concept Extraction",
		emoji:       "🧩",
		description: "Find a successful analogous solution elsewhere and extract its transferable concept.",
		steps: []StepInfo{
			stepInfo("Identify a success", "analogy", "🧩", "Identify a successful example unrelated to this domain."),
			stepInfo("Extract the concept", "abstraction", "🔍", "Abstract the principle that made it work."),
			stepInfo("Apply the concept", "transfer", "🔁", "Transfer the abstracted principle back to the problem."),
		},
		guidance: []string{
			"{problem}: what unrelated domain has solved something structurally similar?",
			"{problem}: what's the underlying principle, stripped of domain detail?",
			"{problem}: how would that principle apply here?",
		},
	}
}

// convergenceHandler is the synthesis technique driven by the
// ConvergenceExecutor (component 13); its steps describe the normalization
// and synthesis pipeline rather than a standalone creative technique.
func convergenceHandler() *TableHandler {
	return &TableHandler{
		id:          "convergence",
		name:        "Convergence",
		emoji:       "🔀",
		description: "Synthesize the outputs of a completed parallel group into one view.",
		steps: []StepInfo{
			stepInfo("Normalize", "normalization", "🔀", "Normalize and validate each parallel result."),
			stepInfo("Merge", "synthesis", "🧵", "Merge deduplicated insights and roll up metrics."),
		},
		guidance: []string{
			"{problem}: normalize the parallel results, discarding malformed entries.",
			"{problem}: synthesize the merged insights into one coherent view.",
		},
		requiredFields: []FieldCheck{
			{Field: "parallelResults", Kind: KindArray, Required: true},
		},
	}
}
