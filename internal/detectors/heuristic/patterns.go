// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package heuristic

import (
	"regexp"
	"strings"

	"lexredact/internal/detector"
)

// TriggerPattern is a compiled trigger with the category and confidence of
// the value it introduces. Group selects the value capture group.
type TriggerPattern struct {
	Pattern     *regexp.Regexp
	Name        string
	Description string
	Category    detector.Category
	Confidence  float64
	Group       int

	// PlaceGroup, when set, makes the value require a leading ordinal or a
	// matched place group ("de Lima").
	PlaceGroup int
}

// PatternManager holds the trigger patterns
type PatternManager struct {
	patterns []TriggerPattern
}

// NewPatternManager creates a new pattern manager with compiled patterns
func NewPatternManager() *PatternManager {
	pm := &PatternManager{}
	pm.compileAllPatterns()
	return pm
}

// Patterns returns the compiled patterns
func (pm *PatternManager) Patterns() []TriggerPattern {
	return pm.patterns
}

const (
	// noise allowed between a trigger and its value
	sep = `[\s:,\-]+`

	word      = `\p{Lu}[\p{L}'\-]+`
	nameWords = word + `(?:[ \t]+(?:(?:de|del|de[ \t]+la|de[ \t]+los|y)[ \t]+)?` + word + `)`

	// number marker: N°, Nº, No., Nro.
	numberMarker = `(?:[nN](?:[°º]|o\.?|ro\.?|\.)?\s*)?:?\s*`

	placeSuffix = `([ \t]+(?i:de|del|de[ \t]+la)[ \t]+` + word + `(?:[ \t]+(?:de[ \t]+)?` + word + `){0,3})?`
	ordinal     = `(?:\d{1,2}[ \t]*(?:[°º]|er|ro|do|to|vo|mo|no|ra|da|ta)?[ \t]*)?`
)

// compileAllPatterns compiles all trigger patterns
func (pm *PatternManager) compileAllPatterns() {
	definitions := []struct {
		name        string
		pattern     string
		description string
		category    detector.Category
		confidence  float64
		group       int
		placeGroup  int
	}{
		{
			name:        "honorific",
			pattern:     `(?:^|[^\p{L}])(?i:señora|señor|señorita|srta\.|sra\.|sr\.|doña|don|doctora|doctor|dra\.|dr\.|abogada|abogado|letrada|letrado)` + sep + `(` + nameWords + `{0,4})`,
			description: "Form of address followed by capitalized words",
			category:    detector.Person,
			confidence:  0.85,
			group:       1,
		},
		{
			name:        "identified_with",
			pattern:     `(` + nameWords + `{1,4})[\s,]*(?i:identificad[oa]|con)[ \t]+(?i:con[ \t]+)?(?i:DNI|D\.N\.I\.?|documento(?:[ \t]+nacional)?(?:[ \t]+de[ \t]+identidad)?|carn[eé][ \t]+de[ \t]+extranjer[ií]a)`,
			description: "Name followed by 'identificado con DNI'",
			category:    detector.Person,
			confidence:  0.9,
			group:       1,
		},
		{
			name:        "role",
			pattern:     `(?:^|[^\p{L}])(?i:codemandad[oa]|demandante|demandad[oa]|testigo|apoderad[oa]|representante|c[oó]nyuge|imputad[oa]|agraviad[oa]|denunciante|denunciad[oa]|procesad[oa]|solicitante|recurrente|invitad[oa]|perit[oa]|conviviente)` + sep + `(` + nameWords + `{1,4})`,
			description: "Procedural role followed by a name",
			category:    detector.Person,
			confidence:  0.75,
			group:       1,
		},
		{
			name:        "domicile",
			pattern:     `(?i:domicilio[ \t]+(?:real|procesal|legal|fiscal|actual|particular)(?:[ \t]+(?:en|sito[ \t]+en|ubicado[ \t]+en))?|domiciliad[oa][ \t]+en|domicilio[ \t]+(?:en|sito[ \t]+en|ubicado[ \t]+en)|reside[ \t]+en|vive[ \t]+en|habita[ \t]+en|direcci[oó]n[ \t]*:)` + `[\s:,\-]*([^;\n]{6,150})`,
			description: "Domicile phrase followed by an address",
			category:    detector.Address,
			confidence:  0.85,
			group:       1,
		},
		{
			name:        "address_indicator",
			pattern:     `(?:^|[^\p{L}])((?:Av(?:enida)?\.?|Jr\.|Jir[oó]n|Calle|Psje\.|Pasaje|Mz\.|Manzana|Urb\.|Urbanizaci[oó]n|AA\.\s?HH\.|Asentamiento[ \t]+Humano)[ \t]+[\p{L}0-9 ,.\-°º#]{4,120})`,
			description: "Street indicator followed by an address",
			category:    detector.Address,
			confidence:  0.75,
			group:       1,
		},
		{
			name: "court",
			pattern: `(?:^|[^\p{L}\d])(` + ordinal + `(?i:juzgado|sala)(?:[ \t]+(?i:de[ \t]+paz[ \t]+letrado|paz[ \t]+letrado|especializad[oa]|de[ \t]+familia|de[ \t]+trabajo|civil|penal|laboral|mixt[oa]|comercial|constitucional|unipersonal|colegiado|de[ \t]+investigaci[oó]n[ \t]+preparatoria|en[ \t]+lo[ \t]+(?:civil|penal|laboral|contencioso[ \t]+administrativo)|transitori[oa]|permanente|superior|suprema|de[ \t]+apelaciones|liquidador[a]?)){1,3}` +
				placeSuffix + `)`,
			description: "Numbered or located court",
			category:    detector.Court,
			confidence:  0.8,
			group:       1,
			placeGroup:  2,
		},
		{
			name: "prosecutor",
			pattern: `(?:^|[^\p{L}\d])(` + ordinal + `(?i:fiscal[ií]a)(?:[ \t]+(?i:provincial|superior|suprema|especializada|corporativa|penal|civil|mixta|de[ \t]+familia|de[ \t]+prevenci[oó]n[ \t]+del[ \t]+delito|anticorrupci[oó]n|transitoria|supraprovincial)){1,4}` +
				placeSuffix + `)`,
			description: "Numbered or located prosecutor office",
			category:    detector.ProsecutorOffice,
			confidence:  0.8,
			group:       1,
			placeGroup:  2,
		},
		{
			name:        "signature_bracket",
			pattern:     `(\[(?i:firma)[^\]\n]{0,40}\]|(?i:firma[ \t]+ilegible)|(?i:firma[ \t]+del?[ \t]+(?:abogad[oa]|demandante|demandad[oa]|recurrente|solicitante)))`,
			description: "Signature marker",
			category:    detector.Signature,
			confidence:  0.9,
			group:       1,
		},
		{
			name:        "stamp",
			pattern:     `(\[(?i:sello)[^\]\n]{0,40}\]|(?i:sello[ \t]+(?:y[ \t]+firma|notarial|de[ \t]+recepci[oó]n)))`,
			description: "Stamp marker",
			category:    detector.Stamp,
			confidence:  0.85,
			group:       1,
		},
		{
			name:        "fingerprint",
			pattern:     `(\[(?i:huella)[^\]\n]{0,40}\]|(?i:huella[ \t]+(?:digital|dactilar)))`,
			description: "Fingerprint marker",
			category:    detector.Fingerprint,
			confidence:  0.85,
			group:       1,
		},
	}

	for _, def := range definitions {
		pm.patterns = append(pm.patterns, TriggerPattern{
			Pattern:     regexp.MustCompile(def.pattern),
			Name:        def.name,
			Description: def.description,
			Category:    def.category,
			Confidence:  def.confidence,
			Group:       def.group,
			PlaceGroup:  def.placeGroup,
		})
	}
}

// personTriggers raise confidence for nearby upper-case runs.
var personTriggers = []string{
	"demandante", "demandado", "demandada", "codemandado", "codemandada",
	"señor", "señora", "sr.", "sra.", "don", "doña",
	"abogado", "abogada", "letrado", "letrada",
	"menor", "menores", "hijo", "hija", "madre", "padre",
	"identificado", "identificada", "suscrito", "suscrita",
	"interpone", "interpongo", "contra", "recurrente",
	"testigo", "perito", "perita", "declarante",
	"cónyuge", "esposo", "esposa", "conviviente",
	"representante", "apoderado", "apoderada",
	"solicitante", "invitado", "invitada",
	"acreedor", "acreedora", "deudor", "deudora",
	"denunciante", "denunciado", "denunciada",
	"imputado", "imputada", "procesado", "procesada",
	"agraviado", "agraviada", "víctima", "victima",
}

var triggerNearby = func() *regexp.Regexp {
	quoted := make([]string, len(personTriggers))
	for i, t := range personTriggers {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}])`)
}()

var upperRun = regexp.MustCompile(`(?:^|[^\p{L}\d])(\p{Lu}{2,}(?:[ \t]+\p{Lu}{2,}){1,5})`)

// address indicators used to grade domicile captures
var addressIndicator = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:av(?:enida)?\.?|jr\.?|jir[oó]n|calle|psje\.?|pasaje|mz\.?|manzana|lt\.?|lote|urb\.?|urbanizaci[oó]n|aa\.?\s?hh\.?|p\.\s?j\.|bloque|piso|int(?:erior)?\.?|dpto\.?|departamento|n[°º]|nro\.?|km\.?)(?:$|[^\p{L}])`)

var addressStop = regexp.MustCompile(`(?i),?[ \t]+(?:identificad[oa]|con[ \t]+DNI|tel[eé]fono|celular|correo|a[ \t]+quien|quien|donde|en[ \t]+adelante|lugar[ \t]+donde|a[ \t]+fin|para[ \t]+que|por[ \t]+lo)`)

// abbreviations that end in a period inside addresses
var addressAbbrev = map[string]bool{
	"AV": true, "JR": true, "MZ": true, "LT": true, "URB": true, "PSJE": true, "DPTO": true,
	"INT": true, "NRO": true, "N": true, "HH": true, "AA": true, "P": true, "J": true, "KM": true,
	"STA": true, "STO": true, "PROV": true, "DPTO.": true, "MZA": true, "CDRA": true, "ALT": true,
}
