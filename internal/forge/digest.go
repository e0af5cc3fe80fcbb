package forge

import (
	"fmt"
	"strings"
)

// truncate shortens s to at most n runes, appending an ellipsis when it
// had to cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// BuildPhase1Digest summarizes the DECOMPOSE phase for the EXPLORE phase's
// first user message: at most 5 fundamentals, reframing responses
// (skipping "no resonance"), and assumption responses. Returns "" when
// there is nothing to say.
func BuildPhase1Digest(s *ForgeState) string {
	var lines []string

	if n := len(s.Fundamentals); n > 0 {
		shown := s.Fundamentals
		if len(shown) > 5 {
			shown = shown[:5]
		}
		lines = append(lines, "Fundamentals: "+strings.Join(shown, "; "))
	}

	var reframingLines []string
	for _, r := range s.Reframings {
		if r.SelectedOption == 0 {
			continue
		}
		opt := ""
		if r.SelectedOption > 0 && r.SelectedOption < len(r.ResonanceOptions) {
			opt = r.ResonanceOptions[r.SelectedOption]
		}
		reframingLines = append(reframingLines, fmt.Sprintf("- %q -> %s", truncate(r.Text, 120), opt))
	}
	if len(reframingLines) > 0 {
		lines = append(lines, "Reframing responses:\n"+strings.Join(reframingLines, "\n"))
	}

	var assumptionLines []string
	for _, a := range s.Assumptions {
		if a.SelectedOption == 0 {
			continue
		}
		opt := ""
		if a.SelectedOption > 0 && a.SelectedOption < len(a.Options) {
			opt = a.Options[a.SelectedOption]
		}
		assumptionLines = append(assumptionLines, fmt.Sprintf("- %q -> %s", truncate(a.Text, 120), opt))
	}
	if len(assumptionLines) > 0 {
		lines = append(lines, "Assumption responses:\n"+strings.Join(assumptionLines, "\n"))
	}

	if len(lines) == 0 {
		return ""
	}
	return "## Prior phase: DECOMPOSE\n" + strings.Join(lines, "\n\n")
}

// BuildPhase2Digest summarizes EXPLORE for the SYNTHESIZE phase's first
// user message.
func BuildPhase2Digest(s *ForgeState) string {
	var lines []string

	if sel := s.SelectedReframings(); len(sel) > 0 {
		var texts []string
		for _, r := range sel {
			texts = append(texts, truncate(r.Text, 120))
		}
		lines = append(lines, "Selected reframing(s): "+strings.Join(texts, "; "))
	}

	var analogyLines []string
	for _, a := range s.CrossDomainAnalogies {
		if a.SelectedOption == 0 {
			continue
		}
		opt := ""
		if a.SelectedOption > 0 && a.SelectedOption < len(a.ResonanceOptions) {
			opt = a.ResonanceOptions[a.SelectedOption]
		}
		analogyLines = append(analogyLines, fmt.Sprintf("- %s: %q -> %s", a.Domain, truncate(a.Description, 100), opt))
	}
	if len(analogyLines) > 0 {
		lines = append(lines, "Analogy responses:\n"+strings.Join(analogyLines, "\n"))
	}

	if n := len(s.Contradictions); n > 0 {
		shown := s.Contradictions
		if len(shown) > 3 {
			shown = shown[:3]
		}
		var cl []string
		for _, c := range shown {
			cl = append(cl, fmt.Sprintf("%s vs %s", c.PropertyA, c.PropertyB))
		}
		lines = append(lines, "Contradictions: "+strings.Join(cl, "; "))
	}

	if s.MorphologicalBox != nil {
		shown := s.MorphologicalBox
		if len(shown) > 5 {
			shown = shown[:5]
		}
		var names []string
		for _, p := range shown {
			names = append(names, p.Name)
		}
		lines = append(lines, "Morphological parameters: "+strings.Join(names, ", "))
	}

	if len(lines) == 0 {
		return ""
	}
	return "## Prior phase: EXPLORE\n" + strings.Join(lines, "\n\n")
}

// BuildPhase3Digest summarizes SYNTHESIZE for the VALIDATE phase's first
// user message: one line per claim with text, falsifiability, and
// evidence count.
func BuildPhase3Digest(s *ForgeState) string {
	if len(s.CurrentRoundClaims) == 0 {
		return ""
	}
	var lines []string
	for i, c := range s.CurrentRoundClaims {
		lines = append(lines, fmt.Sprintf("[%d] %s | falsifiable if: %s | evidence: %d",
			i, truncate(c.ClaimText, 120), truncate(c.FalsifiabilityCondition, 80), len(c.Evidence)))
	}
	return "## Prior phase: SYNTHESIZE\n" + strings.Join(lines, "\n")
}

// BuildPhase4Digest summarizes VALIDATE for the BUILD phase's first user
// message: per-claim verdict, scores, plus cumulative graph counts once a
// round has completed.
func BuildPhase4Digest(s *ForgeState) string {
	if len(s.CurrentRoundClaims) == 0 {
		return ""
	}
	var lines []string
	for i, c := range s.CurrentRoundClaims {
		scoreStr := "unscored"
		if c.Scores != nil {
			scoreStr = fmt.Sprintf("novelty=%.2f groundedness=%.2f falsifiability=%.2f significance=%.2f",
				c.Scores.Novelty, c.Scores.Groundedness, c.Scores.Falsifiability, c.Scores.Significance)
		}
		verdict := string(c.Verdict)
		if verdict == "" {
			verdict = "pending"
		}
		lines = append(lines, fmt.Sprintf("[%d] verdict=%s %s", i, verdict, scoreStr))
	}
	if s.CurrentRound > 0 {
		lines = append(lines, fmt.Sprintf("Graph so far: %d nodes, %d edges", len(s.KnowledgeGraphNodes), len(s.KnowledgeGraphEdges)))
	}
	return "## Prior phase: VALIDATE\n" + strings.Join(lines, "\n")
}

// BuildContinueDigest summarizes the cumulative graph state for a new
// round's SYNTHESIZE entry (BUILD -> SYNTHESIZE "continue" decision).
func BuildContinueDigest(s *ForgeState) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Round: %d", s.CurrentRound+1))

	nodes := s.KnowledgeGraphNodes
	if len(nodes) > 5 {
		nodes = nodes[len(nodes)-5:]
	}
	if len(nodes) > 0 {
		var nl []string
		for _, n := range nodes {
			nl = append(nl, fmt.Sprintf("%s (%s)", truncate(n.ClaimText, 100), n.Status))
		}
		lines = append(lines, "Recent graph nodes:\n"+strings.Join(nl, "\n"))
	}

	neg := s.NegativeKnowledge
	if len(neg) > 3 {
		neg = neg[len(neg)-3:]
	}
	if len(neg) > 0 {
		var nl []string
		for _, n := range neg {
			nl = append(nl, fmt.Sprintf("%s: %s", truncate(n.ClaimText, 80), n.RejectionReason))
		}
		lines = append(lines, "Negative knowledge:\n"+strings.Join(nl, "\n"))
	}

	gaps := s.Gaps
	if len(gaps) > 3 {
		gaps = gaps[:3]
	}
	if len(gaps) > 0 {
		lines = append(lines, "Gaps: "+strings.Join(gaps, "; "))
	}

	return "## Continuing investigation\n" + strings.Join(lines, "\n\n")
}

// crystallizeSection builds one [S..] labeled section of the crystallize
// digest, or "" when there is nothing for that section.
func crystallizeProblemFraming(s *ForgeState) string {
	if len(s.Fundamentals) == 0 && len(s.SelectedReframings()) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[S1-2] Problem framing\n")
	if len(s.Fundamentals) > 0 {
		b.WriteString("Fundamentals: " + strings.Join(s.Fundamentals, "; ") + "\n")
	}
	for _, r := range s.SelectedReframings() {
		b.WriteString("Reframing: " + truncate(r.Text, 160) + "\n")
	}
	return b.String()
}

func crystallizeExploration(s *ForgeState) string {
	if len(s.ResonantAnalogies()) == 0 && len(s.Contradictions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[S3] Cross-domain exploration\n")
	for _, a := range s.ResonantAnalogies() {
		b.WriteString(fmt.Sprintf("Analogy: %s -> %s\n", a.Domain, truncate(a.Description, 140)))
	}
	for _, c := range s.Contradictions {
		b.WriteString(fmt.Sprintf("Contradiction: %s vs %s\n", c.PropertyA, c.PropertyB))
	}
	return b.String()
}

func crystallizeClaims(s *ForgeState) string {
	if len(s.KnowledgeGraphNodes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[S4-5] Validated claims\n")
	for _, n := range s.KnowledgeGraphNodes {
		b.WriteString(fmt.Sprintf("%s (%s, confidence=%s)\n", truncate(n.ClaimText, 160), n.Status, n.Confidence))
	}
	return b.String()
}

func crystallizeGraphStructure(s *ForgeState) string {
	if len(s.KnowledgeGraphEdges) == 0 {
		return ""
	}
	return fmt.Sprintf("[S6] Graph structure\n%d nodes, %d edges\n", len(s.KnowledgeGraphNodes), len(s.KnowledgeGraphEdges))
}

func crystallizeNegativeKnowledge(s *ForgeState) string {
	if len(s.NegativeKnowledge) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[S7] Negative knowledge\n")
	for _, n := range s.NegativeKnowledge {
		b.WriteString(fmt.Sprintf("%s: %s\n", truncate(n.ClaimText, 120), n.RejectionReason))
	}
	return b.String()
}

func crystallizeGaps(s *ForgeState) string {
	if len(s.Gaps) == 0 {
		return ""
	}
	return "[S8-9] Open gaps\n" + strings.Join(s.Gaps, "\n") + "\n"
}

// BuildCrystallizeDigest always emits a template (even when every section
// is empty) organized by the ten target document sections, per spec.md
// §4.5.
func BuildCrystallizeDigest(s *ForgeState) string {
	sections := []string{
		crystallizeProblemFraming(s),
		crystallizeExploration(s),
		crystallizeClaims(s),
		crystallizeGraphStructure(s),
		crystallizeNegativeKnowledge(s),
		crystallizeGaps(s),
		fmt.Sprintf("[S10] Rounds: %d\n", s.CurrentRound+1),
	}
	var nonEmpty []string
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return "## Crystallizing the investigation\n\n" + strings.Join(nonEmpty, "\n")
}
