package dispatcher

type tickMetrics struct {
	selected    int
	skipped     int
	completed   int
	failed      int
	rateLimited int
	unchanged   int
	changed     int
	meaningful  int
}

func (m *tickMetrics) Add(other *tickMetrics) {
	m.selected += other.selected
	m.skipped += other.skipped
	m.completed += other.completed
	m.failed += other.failed
	m.rateLimited += other.rateLimited
	m.unchanged += other.unchanged
	m.changed += other.changed
	m.meaningful += other.meaningful
}
