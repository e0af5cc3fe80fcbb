package forge

import "strings"

// promptSection is one named, independently includable block of the
// system prompt.
type promptSection struct {
	name    string
	text    string
	// phases restricts inclusion to the listed phases; nil means every
	// phase.
	phases map[Phase]bool
}

func allPhases(ps ...Phase) map[Phase]bool {
	m := make(map[Phase]bool, len(ps))
	for _, p := range ps {
		m[p] = true
	}
	return m
}

// englishSections defines the base system-prompt sections in English.
// Non-English, non-Portuguese locales reuse this base text verbatim and
// rely on the bilingual bookend (languageBookend) for localization,
// exploiting primacy/recency bias per spec.md §4.6.
func englishSections() []promptSection {
	return []promptSection{
		{name: "identity", text: "You are the investigation engine of a knowledge-creation pipeline. " +
			"You move a problem through six phases — DECOMPOSE, EXPLORE, SYNTHESIZE, VALIDATE, BUILD, CRYSTALLIZE — " +
			"using tools to record every finding. You never skip a phase's required tool calls."},
		{name: "mission", text: "Your mission is to produce falsifiable, evidence-grounded knowledge claims, " +
			"not plausible-sounding prose. Every claim must survive an attempt to falsify it and a check for novelty " +
			"before it is scored."},
		{name: "pipeline_decompose", text: "DECOMPOSE: extract fundamentals, research the state of the art, " +
			"surface at least three hidden assumptions, and propose at least three alternative reframings of the problem.",
			phases: allPhases(PhaseDecompose)},
		{name: "pipeline_explore", text: "EXPLORE: build a morphological box of at least three parameters (each with " +
			"at least three values), search at least two cross-domain analogies, and identify contradictions.",
			phases: allPhases(PhaseExplore)},
		{name: "pipeline_synthesize", text: "SYNTHESIZE: state a thesis, search for its antithesis, and only then " +
			"create a synthesis claim. At most three claims per round.",
			phases: allPhases(PhaseSynthesize)},
		{name: "pipeline_validate", text: "VALIDATE: attempt to falsify every claim and check it for novelty before " +
			"scoring it on four axes.",
			phases: allPhases(PhaseValidate)},
		{name: "pipeline_build", text: "BUILD: add accepted and qualified claims to the knowledge graph, consult " +
			"negative knowledge, and analyze remaining gaps.",
			phases: allPhases(PhaseBuild)},
		{name: "pipeline_crystallize", text: "CRYSTALLIZE: generate the ten-section knowledge document from the " +
			"cumulative graph.",
			phases: allPhases(PhaseCrystallize)},
		{name: "enforcement_decompose", text: "You cannot leave DECOMPOSE until you have researched the state of the " +
			"art, listed at least three assumptions, and proposed at least three reframings with at least one " +
			"selected by the user.",
			phases: allPhases(PhaseDecompose)},
		{name: "enforcement_explore", text: "You cannot leave EXPLORE until the morphological box exists, at least " +
			"two cross-domain searches have been performed, and at least one analogy has resonated.",
			phases: allPhases(PhaseExplore)},
		{name: "enforcement_synthesize", text: "You cannot create a synthesis for a claim until you have searched " +
			"for its antithesis. You cannot propose a fourth claim this round.",
			phases: allPhases(PhaseSynthesize)},
		{name: "enforcement_validate", text: "You cannot score a claim until you have attempted to falsify it and " +
			"checked it for novelty.",
			phases: allPhases(PhaseValidate)},
		{name: "web_research", text: "Use the research tool to delegate web queries; it returns a compact summary " +
			"and sources rather than raw pages, keeping your context small."},
		{name: "research_archive", text: "Use search_research_archive before re-researching a topic you may have " +
			"already covered this session."},
		{name: "dialectical_method", text: "Work dialectically: thesis, then antithesis, then a synthesis that " +
			"survives the tension between them."},
		{name: "falsifiability", text: "Every claim must state a concrete condition under which it would be false. " +
			"A claim with no falsifiability condition is not a claim."},
		{name: "knowledge_graph", text: "The knowledge graph is cumulative across rounds. Reference prior claims " +
			"explicitly when a new claim extends, supports, or contradicts them."},
		{name: "working_document", text: "Before ending a turn in phases 1 through 5, call " +
			"update_working_document with this phase's findings."},
		{name: "tool_efficiency", text: "Call tools with complete, well-formed arguments the first time; avoid " +
			"redundant calls that repeat work already recorded in state."},
		{name: "context_management", text: "Your context is compacted automatically as it grows; do not try to " +
			"restate the entire history yourself."},
		{name: "thinking_guidance", text: "Think before you act, but keep exploratory reasoning out of your final " +
			"answer text — let tool calls carry the structured findings."},
		{name: "output_guidance", text: "Prefer tool calls to prose. Use free text only to narrate what you are " +
			"about to do or to respond directly to the user during a pause."},
	}
}

// ptBRSections is the fully localized Portuguese section set, included
// instead of the English base (not alongside it) when locale is pt-BR,
// per spec.md §4.6's "fully localized section text" rule for EN and
// pt-BR.
func ptBRSections() []promptSection {
	return []promptSection{
		{name: "identity", text: "Você é o motor de investigação de um pipeline de criação de conhecimento. " +
			"Você conduz um problema através de seis fases — DECOMPOSE, EXPLORE, SYNTHESIZE, VALIDATE, BUILD, " +
			"CRYSTALLIZE — usando ferramentas para registrar cada descoberta. Você nunca pula as chamadas de " +
			"ferramenta exigidas por uma fase."},
		{name: "mission", text: "Sua missão é produzir afirmações de conhecimento falseáveis e fundamentadas em " +
			"evidências, não prosa plausível. Toda afirmação deve sobreviver a uma tentativa de falseamento e a " +
			"uma verificação de ineditismo antes de ser pontuada."},
		{name: "pipeline_decompose", text: "DECOMPOSE: extraia os fundamentos, pesquise o estado da arte, revele " +
			"ao menos três suposições ocultas e proponha ao menos três reformulações alternativas do problema.",
			phases: allPhases(PhaseDecompose)},
		{name: "pipeline_explore", text: "EXPLORE: construa uma caixa morfológica com ao menos três parâmetros " +
			"(cada um com ao menos três valores), pesquise ao menos duas analogias interdomínio e identifique " +
			"contradições.",
			phases: allPhases(PhaseExplore)},
		{name: "pipeline_synthesize", text: "SYNTHESIZE: declare uma tese, pesquise sua antítese e só então crie " +
			"uma afirmação de síntese. No máximo três afirmações por rodada.",
			phases: allPhases(PhaseSynthesize)},
		{name: "pipeline_validate", text: "VALIDATE: tente falsear cada afirmação e verifique seu ineditismo antes " +
			"de pontuá-la em quatro eixos.",
			phases: allPhases(PhaseValidate)},
		{name: "pipeline_build", text: "BUILD: adicione afirmações aceitas e qualificadas ao grafo de " +
			"conhecimento, consulte o conhecimento negativo e analise as lacunas restantes.",
			phases: allPhases(PhaseBuild)},
		{name: "pipeline_crystallize", text: "CRYSTALLIZE: gere o documento de conhecimento de dez seções a " +
			"partir do grafo cumulativo.",
			phases: allPhases(PhaseCrystallize)},
		{name: "working_document", text: "Antes de encerrar um turno nas fases 1 a 5, chame " +
			"update_working_document com as descobertas desta fase."},
		{name: "output_guidance", text: "Prefira chamadas de ferramenta a prosa. Use texto livre apenas para " +
			"narrar o que você está prestes a fazer ou para responder diretamente ao usuário durante uma pausa."},
	}
}

// languageBookend is the opening+closing language-rule pair appended for
// locales that reuse the English base (every locale but EN and pt-BR).
// It is deliberately placed at both the start and end of the prompt to
// exploit primacy and recency bias, per spec.md §4.6.
var languageBookend = map[Locale]string{
	LocaleES: "Responde siempre en español, incluso cuando el texto de la herramienta esté en inglés.",
	LocaleFR: "Répondez toujours en français, même si le texte de l'outil est en anglais.",
	LocaleDE: "Antworten Sie immer auf Deutsch, auch wenn der Werkzeugtext auf Englisch ist.",
	LocaleZH: "始终使用中文回复，即使工具文本是英文的。",
	LocaleJA: "ツールのテキストが英語であっても、常に日本語で応答してください。",
	LocaleKO: "도구 텍스트가 영어이더라도 항상 한국어로 응답하세요.",
	LocaleIT: "Rispondi sempre in italiano, anche se il testo dello strumento è in inglese.",
	LocaleRU: "Всегда отвечайте на русском языке, даже если текст инструмента на английском.",
}

// AssemblePrompt composes the system prompt for (locale, phase). phase
// may be the empty string to mean "no phase filter" (used by the research
// sub-agent's host prompt construction, which has no phase of its own).
func AssemblePrompt(locale Locale, phase Phase) string {
	var sections []promptSection
	switch locale {
	case LocalePTBR:
		sections = ptBRSections()
	default:
		sections = englishSections()
	}

	var parts []string
	for _, s := range sections {
		if s.phases != nil && phase != "" && !s.phases[phase] {
			continue
		}
		parts = append(parts, s.text)
	}
	body := strings.Join(parts, "\n\n")

	bookend, needsBookend := languageBookend[locale]
	if !needsBookend {
		return body
	}
	return bookend + "\n\n" + body + "\n\n" + bookend
}
