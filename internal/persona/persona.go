package persona

// Persona is an immutable dialogue profile: variant pools plus the
// escalation rules that govern when the alternate pools take over.
type Persona struct {
	Name         string
	VoiceProfile string
	Greetings    []string
	Responses    []string
	FollowUps    []string
	// KeywordResponses fire when the caller uses a known fraud-tactic term.
	KeywordResponses []string
	SilenceLines     []string
	IrritatedLines   []string
	DerailedLines    []string
	Escalation       EscalationRules
}

// EscalationRules make the behavior drift explicit: once the interruption
// counter reaches IrritationThreshold the persona enters MoodIrritated; each
// respond phase also rolls DerailChance for a lost-train-of-thought line.
type EscalationRules struct {
	IrritationThreshold int
	DerailChance        float64
}

type Mood string

const (
	MoodCalm      Mood = "calm"
	MoodIrritated Mood = "irritated"
)

// Counters is the per-conversation behavior state carried between turns.
type Counters struct {
	Interruptions int  `json:"interruptions"`
	Irritation    int  `json:"irritation"`
	Forgetfulness int  `json:"forgetfulness"`
	Mood          Mood `json:"mood"`
}

// Catalog is the static set of personas available for assignment.
type Catalog struct {
	personas []Persona
	byName   map[string]*Persona
}

func NewCatalog(personas []Persona) *Catalog {
	c := &Catalog{personas: personas, byName: make(map[string]*Persona, len(personas))}
	for i := range c.personas {
		c.byName[c.personas[i].Name] = &c.personas[i]
	}
	return c
}

func DefaultCatalog() *Catalog {
	return NewCatalog(builtinPersonas())
}

func (c *Catalog) Get(name string) (*Persona, bool) {
	p, ok := c.byName[name]
	return p, ok
}

func (c *Catalog) Names() []string {
	names := make([]string, len(c.personas))
	for i := range c.personas {
		names[i] = c.personas[i].Name
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.personas)
}

func builtinPersonas() []Persona {
	return []Persona{
		{
			Name:         "mildred",
			VoiceProfile: "en-US-elderly-female",
			Greetings: []string{
				"Hello? Hello, who is this?",
				"Yes, hello? Oh dear, hold on, let me turn the television down.",
				"Hello? Is this about the church raffle?",
			},
			Responses: []string{
				"Oh my, I'm not sure I follow, dear.",
				"Hold on now, my hearing aid is acting up again.",
				"You sound just like my nephew Gerald. Are you calling from Ohio?",
				"Well, I'd have to ask my late husband about that. Oh... oh dear.",
				"Let me get a pencil. These pencils, they're never where I leave them.",
			},
			FollowUps: []string{
				"Now what did you say your name was?",
				"Are you the one who called about the dishwasher?",
				"Do you know my granddaughter Emily? Lovely girl.",
				"What company did you say you were with, dear?",
			},
			KeywordResponses: []string{
				"A gift card? I have a card from the pharmacy, does that work?",
				"Wire transfer? We had wiring done in the kitchen last spring.",
				"Oh heavens, that sounds serious. Should I call my Gerald?",
			},
			SilenceLines: []string{
				"Hello? Are you still there, dear?",
				"I think the line went funny again. Hello?",
				"Oh, these telephones. Hello? Can you hear me?",
			},
			IrritatedLines: []string{
				"Young man, there is no need to rush me.",
				"Now you listen here, I was on the phone before you were born.",
				"If you keep interrupting I will hang up, I mean it.",
			},
			DerailedLines: []string{
				"Anyway, as I was saying about the casserole...",
				"Wait, what were we talking about? I had it just a moment ago.",
				"Oh! That reminds me of the summer of 1962.",
			},
			Escalation: EscalationRules{IrritationThreshold: 4, DerailChance: 0.2},
		},
		{
			Name:         "herbert",
			VoiceProfile: "en-US-elderly-male",
			Greetings: []string{
				"Herbert speaking. Who've I got?",
				"Yello! You caught me in the garage.",
				"Hold your horses... okay, go ahead, I'm listening.",
			},
			Responses: []string{
				"Well now, that's interesting. Back in my day we did it different.",
				"You'll have to slow down, son. My ears aren't what they were.",
				"I've got a fella at the bank who handles all that for me.",
				"Sure, sure. Say, do you follow baseball at all?",
				"Let me write that down. Okay. Spell it for me, would you?",
			},
			FollowUps: []string{
				"Whereabouts are you calling from?",
				"How long you been in this line of work?",
				"You married, son?",
				"What was that outfit called again?",
			},
			KeywordResponses: []string{
				"Bitcoin? That the one my grandson keeps going on about?",
				"Remote access? I've got a universal remote, lost the manual though.",
				"The IRS? Funny, I golf with a retired IRS man every Thursday.",
			},
			SilenceLines: []string{
				"You still with me? Speak up.",
				"Hello? Darn cordless phone.",
				"I can hear you breathing, you know.",
			},
			IrritatedLines: []string{
				"Now hold on, I wasn't finished talking.",
				"You interrupt me one more time and we're done here, friend.",
				"Don't you take that tone with me.",
			},
			DerailedLines: []string{
				"Which reminds me, the Chevy's making that noise again.",
				"Where was I? Doris! Where was I? ... She's out.",
				"Hang on, the dog wants out. Okay. What now?",
			},
			Escalation: EscalationRules{IrritationThreshold: 3, DerailChance: 0.25},
		},
		{
			Name:         "walt",
			VoiceProfile: "en-US-male-gravelly",
			Greetings: []string{
				"WHO IS THIS?",
				"Hello? HELLO? Speak up!",
				"Walt here. You'll have to shout, the hearing's gone.",
			},
			Responses: []string{
				"WHAT? Say again?",
				"You're mumbling. Everybody mumbles these days.",
				"I got most of that. The middle part. Say the ends again.",
				"That's what the last fella said and I didn't understand him either.",
			},
			FollowUps: []string{
				"WHAT'S YOUR NAME? Spell it!",
				"Is this the VA calling?",
				"Say your number slow, I'm writing with my good hand.",
			},
			KeywordResponses: []string{
				"WARRANT? I served twenty years, nobody's arresting me.",
				"Social security? I've had the same number since Truman.",
				"A REFUND? Now you're talking my language. How much?",
			},
			SilenceLines: []string{
				"HELLO? This thing on?",
				"If you're there, SPEAK UP.",
				"I'll count to three and then I'm going back to my program.",
			},
			IrritatedLines: []string{
				"QUIT TALKING OVER ME.",
				"I've been yelled at by drill sergeants, you don't scare me.",
				"One more interruption and this phone goes back on the wall.",
			},
			DerailedLines: []string{
				"You know, this phone was my brother's. Good phone.",
				"Wait. WAIT. I lost the thread. Start over.",
				"That reminds me of Korea. Cold as anything over there.",
			},
			Escalation: EscalationRules{IrritationThreshold: 3, DerailChance: 0.15},
		},
		{
			Name:         "dottie",
			VoiceProfile: "en-US-female-soft",
			Greetings: []string{
				"Hello, this is Dottie. Well, isn't this nice, a phone call.",
				"Hello? Oh, I hope you're not selling anything. Are you?",
				"Hello! You'll forgive me, I was just feeding the cats.",
			},
			Responses: []string{
				"Oh, that does sound important. Let me sit down.",
				"You have such a nice voice. Doesn't he have a nice voice? I'm telling the cat.",
				"I'll need you to go slowly. I write everything in my little book.",
				"My son usually handles these things, but he's in Tucson.",
				"Now I want to get this right. Start from the very beginning.",
			},
			FollowUps: []string{
				"And what was your name again, sweetheart?",
				"Is it cold where you are? It's been dreadful here.",
				"Have you eaten? You sound tired.",
				"Which office did you say, the one downtown?",
			},
			KeywordResponses: []string{
				"A gift card! I have ever so many, from birthdays. Which store?",
				"Western Union, goodness. Is that still around? How nostalgic.",
				"Arrested? At my age that might be exciting.",
			},
			SilenceLines: []string{
				"Hello, dear? Did I lose you?",
				"Oh, I hope I didn't press a button. Hello?",
				"Are you there? The cat stepped on the cord once, you know.",
			},
			IrritatedLines: []string{
				"Now that was not very polite, was it?",
				"I may be old but I will not be spoken to that way.",
				"My word. Your mother would be ashamed of that tone.",
			},
			DerailedLines: []string{
				"Oh! The kettle. Hold that thought.",
				"Where were we? I was thinking about the cats again, forgive me.",
				"You know, my sister had a phone this color.",
			},
			Escalation: EscalationRules{IrritationThreshold: 5, DerailChance: 0.3},
		},
	}
}
