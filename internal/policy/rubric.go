package policy

// Rubric is the fixed point-weight table for standard validation scores.
// Weights are applied uniformly; there are no per-record exceptions.
type Rubric struct {
	SyntaxValid   int
	MXPresent     int
	NotRole       int
	NotDisposable int
	TopTierDomain int
}

// DefaultRubric sums to 100 for a clean record on a top-tier domain.
var DefaultRubric = Rubric{
	SyntaxValid:   40,
	MXPresent:     25,
	NotRole:       10,
	NotDisposable: 10,
	TopTierDomain: 15,
}

// Signals are the boolean inputs to a standard-validation score.
type Signals struct {
	SyntaxValid bool
	MXPresent   bool
	Role        bool
	Disposable  bool
	Category    string
}

// Score applies the rubric additively and clamps to [0, 100].
func (r Rubric) Score(s Signals) int {
	score := 0
	if s.SyntaxValid {
		score += r.SyntaxValid
	}
	if s.MXPresent {
		score += r.MXPresent
	}
	if !s.Role {
		score += r.NotRole
	}
	if !s.Disposable {
		score += r.NotDisposable
	}
	if s.Category == TopTierCategory {
		score += r.TopTierDomain
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
