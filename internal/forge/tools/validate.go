package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
)

// definitionRegistry indexes every Definition across every phase plus the
// cross-cutting, research, and pause groups, keyed by tool name. Built once
// at package init so Dispatch can look a tool's schema up without knowing
// which phase group it came from.
var definitionRegistry = buildDefinitionRegistry()

func buildDefinitionRegistry() map[string]Definition {
	reg := make(map[string]Definition)
	phases := []forge.Phase{
		forge.PhaseDecompose,
		forge.PhaseExplore,
		forge.PhaseSynthesize,
		forge.PhaseValidate,
		forge.PhaseBuild,
		forge.PhaseCrystallize,
	}
	for _, p := range phases {
		for _, d := range PhaseTools(p) {
			reg[d.Name] = d
		}
	}
	for _, d := range CrossCuttingTools() {
		reg[d.Name] = d
	}
	for _, d := range PauseTools() {
		reg[d.Name] = d
	}
	research := ResearchTool()
	reg[research.Name] = research
	return reg
}

var validatorCache sync.Map // map[string]*jsonschema.Schema, keyed by Definition.Name

// compiledValidator compiles and caches the JSON schema for tool name,
// reusing the same invopop-reflected shape ToSchema sends the model, so the
// server-side check can never drift from what the model was told to
// produce, grounded on pkg/pluginsdk/validation.go's compileSchema.
func compiledValidator(name string) (*jsonschema.Schema, error) {
	if cached, ok := validatorCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	d, ok := definitionRegistry[name]
	if !ok {
		return nil, fmt.Errorf("no schema registered for tool %q", name)
	}
	raw, err := json.Marshal(reflectSchema(d.Name, d.New()))
	if err != nil {
		return nil, err
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	validatorCache.Store(name, compiled)
	return compiled, nil
}

// ValidateParams checks raw against tool name's declared input schema, a
// defense-in-depth pass beyond the model's own tool-use constraints: a
// provider can still emit an arguments payload that doesn't conform to the
// schema it was given. An empty payload is accepted unconditionally, since
// several tools (get_session_status, generate_final_spec) take no params
// and unmarshalParams already treats len(raw)==0 as a no-op.
func ValidateParams(name string, raw json.RawMessage) *ferrors.Error {
	if len(raw) == 0 {
		return nil
	}
	schema, err := compiledValidator(name)
	if err != nil {
		return ferrors.New(ferrors.CodeUnknownTool, "no schema registered for tool: "+name)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ferrors.New(ferrors.CodeToolValidationError, "malformed tool input: "+err.Error())
	}
	if err := schema.Validate(decoded); err != nil {
		return ferrors.New(ferrors.CodeToolValidationError, "tool input failed schema validation: "+err.Error())
	}
	return nil
}
