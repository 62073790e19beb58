package domain

// MaxQuestionLen bounds the question text on binary markets.
const MaxQuestionLen = 200

// MinInitialLiquidity is the smallest pool seed accepted at market creation.
// Both pools of a binary market start at this value or above and must stay
// strictly positive for the life of the market.
const MinInitialLiquidity = 100

// PriceScale is the basis-point denominator used for all prices and fees.
const PriceScale = 10000

// Market is a binary (YES/NO) prediction market. YesPool and NoPool jointly
// determine the trade price: the implied YES probability in bps is
// NoPool*10000/(YesPool+NoPool).
type Market struct {
	ID             string
	Creator        string // hex address of the market creator
	Question       string
	ResolutionTime int64 // opaque clock units; compared against Clock.Now
	YesPool        uint64
	NoPool         uint64
	TotalVolume    uint64
	Resolved       bool
	Outcome        bool // meaningful only once Resolved
	CreatedAt      int64

	// Optional multi-choice group membership for legacy binary markets.
	GroupID     string
	AnswerLabel string

	// Fee schedule in bps. The categories sum to at most MaxTotalFeeBps.
	FeeBps          uint16
	CreatorFeeBps   uint16
	PlatformFeeBps  uint16
	LiquidityFeeBps uint16
	CollectedFees   uint64
}

// MinAnswerCount and MaxAnswerCount bound the outcomes of a multi market.
const (
	MinAnswerCount = 2
	MaxAnswerCount = 10
)

// MultiMarket is a multi-outcome market. Each outcome is an Answer with its
// own pool pair. When IsOneWinner is set the answers share a combined 100%
// probability budget and every pool mutation triggers sibling rebalancing.
type MultiMarket struct {
	ID              string
	Creator         string
	QuestionHash    [32]byte
	AnswerCount     uint8
	IsOneWinner     bool
	Volume          uint64
	FeeBps          uint16
	ResolutionTime  int64
	Resolved        bool // derived: AnswersResolved == AnswerCount
	AnswersResolved uint8
	CreatedAt       int64
}

// Answer is one outcome of a MultiMarket, priced by its own pool pair.
type Answer struct {
	Market    string
	Index     uint8
	LabelHash [32]byte
	YesPool   uint64
	NoPool    uint64
	Volume    uint64
	Resolved  bool
	Outcome   *bool // set exactly once, at resolution
}

// TotalPool returns YesPool+NoPool without overflow checking; callers on the
// trade path use the checked arithmetic in internal/num instead.
func (a Answer) TotalPool() uint64 {
	return a.YesPool + a.NoPool
}

// PriceQuote is the implied probability pair for one market or answer.
// YesBps+NoBps is always exactly PriceScale.
type PriceQuote struct {
	YesBps uint64
	NoBps  uint64
}
