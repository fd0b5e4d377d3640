package crawler

// RaceInfo holds the header block of a race result page. Nil fields were absent or unparseable.
type RaceInfo struct {
	RaceID    string  `json:"race_id"`
	No        *string `json:"no"`
	Name      *string `json:"name"`
	Time      *string `json:"time"`
	Kind      *string `json:"kind"`
	Length    *string `json:"length"`
	Direction *string `json:"direction"`
	Weather   *string `json:"weather"`
	State     *string `json:"state"`
	Course    *string `json:"course"`
	Etc1      *string `json:"etc_1"`
	Etc2      *string `json:"etc_2"`
	Etc3      *string `json:"etc_3"`
	Etc4      *string `json:"etc_4"`
	Etc5      *string `json:"etc_5"`
	Etc6      *string `json:"etc_6"`
	Etc7      *string `json:"etc_7"`
	Etc8      *string `json:"etc_8"`
}

// RaceResultRow is one line of the finishing order table.
// Time1 is the finishing time, Time2 the margin, Time3 the last 3 furlongs.
// Odds1 is the popularity rank and Odds2 the win odds.
type RaceResultRow struct {
	RaceID           string  `json:"race_id"`
	Position         int     `json:"position"`
	Rank             *string `json:"rank"`
	Waku             *string `json:"waku"`
	Umaban           *string `json:"umaban"`
	HorseName        *string `json:"horse_name"`
	HorseSex         *string `json:"horse_sex"`
	HorseAge         *string `json:"horse_age"`
	JockeyWeight     *string `json:"jockey_weight"`
	JockeyName       *string `json:"jockey_name"`
	Time1            *string `json:"time_1"`
	Time2            *string `json:"time_2"`
	Odds1            *string `json:"odds_1"`
	Odds2            *string `json:"odds_2"`
	Time3            *string `json:"time_3"`
	PassageRate      *string `json:"passage_rate"`
	TrainerPlace     *string `json:"trainer_place"`
	TrainerName      *string `json:"trainer_name"`
	HorseWeight      *string `json:"horse_weight"`
	HorseWeightDelta *string `json:"horse_weight_delta"`
	HorseID          *string `json:"horse_id"`
	JockeyID         *string `json:"jockey_id"`
	TrainerID        *string `json:"trainer_id"`
}

// BetType names a payout category.
type BetType string

// Bet types in the order the result page lists them.
const (
	BetTansho  BetType = "tansho"
	BetFukusho BetType = "fukusho"
	BetWakuren BetType = "wakuren"
	BetUmaren  BetType = "umaren"
	BetWide    BetType = "wide"
	BetUmatan  BetType = "umatan"
	BetFuku3   BetType = "fuku3"
	BetTan3    BetType = "tan3"
)

// BetTypes lists every bet type in page order.
var BetTypes = []BetType{BetTansho, BetFukusho, BetWakuren, BetUmaren, BetWide, BetUmatan, BetFuku3, BetTan3}

// Cardinality is the number of payout entries a bet type always carries.
func (b BetType) Cardinality() int {
	switch b {
	case BetFukusho, BetWide:
		return 3
	default:
		return 1
	}
}

// PayoutEntry is one payout line. Empty strings mean the line was absent.
type PayoutEntry struct {
	Payout string `json:"payout"`
	Ninki  string `json:"ninki"`
	Result string `json:"result"`
}

// Payout maps every bet type to at least Cardinality() entries. Dead heats
// add entries beyond the cardinality.
type Payout map[BetType][]PayoutEntry

// NewPayout returns a payout with every bet type padded with empty entries.
func NewPayout() Payout {
	p := make(Payout, len(BetTypes))
	for _, b := range BetTypes {
		p[b] = make([]PayoutEntry, b.Cardinality())
	}
	return p
}

// Set stores entries for b, padding up to the bet type's cardinality. Extra
// entries from a dead heat are kept. Unknown bet types are ignored.
func (p Payout) Set(b BetType, entries []PayoutEntry) {
	if _, ok := p[b]; !ok {
		return
	}
	out := make([]PayoutEntry, max(len(entries), b.Cardinality()))
	copy(out, entries)
	p[b] = out
}

// LapSegment is one column of the furlong split table.
type LapSegment struct {
	Header     string `json:"header"`
	HaronTime1 string `json:"haron_time_1"`
	HaronTime2 string `json:"haron_time_2"`
}

// LapPace is the ordered list of furlong segments; empty when the page has no split table.
type LapPace []LapSegment

// RaceResult aggregates everything extracted from one race result page.
type RaceResult struct {
	RaceID  string          `json:"race_id"`
	Info    RaceInfo        `json:"info"`
	Order   []RaceResultRow `json:"order"`
	Payout  Payout          `json:"payout"`
	LapPace LapPace         `json:"lap_pace"`
}
