package match

// Entry é um par (identidade, pontuação).
type Entry struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// ScoreTable é um mapeamento ordenado: a ordem de inserção define a ordem de
// exibição e o desempate da verificação de vitória.
type ScoreTable struct {
	entries []Entry
	index   map[string]int
}

func NewScoreTable() *ScoreTable {
	return &ScoreTable{index: make(map[string]int)}
}

// Ensure cria uma entrada zerada se id ainda não existe.
func (t *ScoreTable) Ensure(id string) bool {
	if _, ok := t.index[id]; ok {
		return false
	}
	t.index[id] = len(t.entries)
	t.entries = append(t.entries, Entry{ID: id})
	return true
}

// Add soma delta à entrada de id, criando-a se preciso, e devolve o novo valor.
func (t *ScoreTable) Add(id string, delta int) int {
	t.Ensure(id)
	i := t.index[id]
	t.entries[i].Score += delta
	return t.entries[i].Score
}

func (t *ScoreTable) Get(id string) (int, bool) {
	i, ok := t.index[id]
	if !ok {
		return 0, false
	}
	return t.entries[i].Score, true
}

func (t *ScoreTable) Len() int { return len(t.entries) }

// Entries devolve uma cópia na ordem de inserção.
func (t *ScoreTable) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// FirstAtOrAbove devolve a primeira entrada com pontuação >= target.
func (t *ScoreTable) FirstAtOrAbove(target int) (Entry, bool) {
	for _, e := range t.entries {
		if e.Score >= target {
			return e, true
		}
	}
	return Entry{}, false
}

// Highest devolve a entrada de maior pontuação. draw é true quando a maior
// pontuação é compartilhada ou a tabela está vazia.
func (t *ScoreTable) Highest() (best Entry, draw bool) {
	if len(t.entries) == 0 {
		return Entry{}, true
	}
	best = t.entries[0]
	for _, e := range t.entries[1:] {
		switch {
		case e.Score > best.Score:
			best = e
			draw = false
		case e.Score == best.Score:
			draw = true
		}
	}
	if draw {
		return Entry{}, true
	}
	return best, false
}
