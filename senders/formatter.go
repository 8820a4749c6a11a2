package senders

import (
	"fmt"

	"github.com/regwatch/regwatch/lib/models"
)

type changeAlertFormat struct {
	target   *models.Target
	analysis *models.ChangeAnalysis
}

func (ef *changeAlertFormat) Subject() string {
	return fmt.Sprintf("Regwatch: meaningful change on %s (score %d)", ef.target.Name, ef.analysis.Score)
}

func (ef *changeAlertFormat) Body() string {
	return fmt.Sprintf(
		`
			<h3>Compliance-relevant change on <a href="%s">%s</a></h3>
			<p><b>Significance score:</b> %d</p>
			<p>%s</p>
			<br>
			Classified by %s at %s
		`,
		ef.target.URL, ef.target.Name,
		ef.analysis.Score,
		ef.analysis.Reasoning,
		ef.analysis.Model, ef.analysis.AnalyzedAt.Format("2006-01-02 15:04 UTC"),
	)
}
