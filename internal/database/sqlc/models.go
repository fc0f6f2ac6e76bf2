package sqlc

type Event struct {
	Seq         int64
	ID          string
	Kind        string
	Who         []byte
	FromAccount []byte
	ToAccount   []byte
	Score       int64
	Amount      []byte
	CreatedAt   int64
}

type Profile struct {
	Account         []byte
	TotalScore      int64
	ReviewCount     int64
	Communication   int64
	Reliability     int64
	Quality         int64
	Professionalism int64
	Active          bool
	StakedAmount    []byte
}

type Rating struct {
	Target          []byte
	Rater           []byte
	Score           int64
	Communication   int64
	Reliability     int64
	Quality         int64
	Professionalism int64
	CreatedAt       int64
	ReviewHash      []byte
}

type RatingCount struct {
	Account     []byte
	RatingCount int64
}
