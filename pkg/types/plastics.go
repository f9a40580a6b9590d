package types

import "fmt"

// PlasticInfo describes a resin code for display next to a detection
type PlasticInfo struct {
	Code       ResinCode `json:"code"`
	Name       string    `json:"name"`
	Recyclable bool      `json:"recyclable"`
	Uses       string    `json:"uses"`
}

var plasticCatalog = map[ResinCode]PlasticInfo{
	HDPE: {Code: HDPE, Name: "High-Density Polyethylene", Recyclable: true, Uses: "Milk jugs, detergent bottles"},
	LDPE: {Code: LDPE, Name: "Low-Density Polyethylene", Recyclable: true, Uses: "Shopping bags, squeeze bottles"},
	PETE: {Code: PETE, Name: "Polyethylene Terephthalate", Recyclable: true, Uses: "Water bottles, food containers"},
	PP:   {Code: PP, Name: "Polypropylene", Recyclable: true, Uses: "Yogurt containers, bottle caps"},
	PS:   {Code: PS, Name: "Polystyrene", Recyclable: false, Uses: "Disposable cups, packaging"},
	PVC:  {Code: PVC, Name: "Polyvinyl Chloride", Recyclable: false, Uses: "Pipes, credit cards"},
}

// LookupPlastic returns catalog information for a detection label
func LookupPlastic(label string) (PlasticInfo, bool) {
	code, ok := ParseResinCode(label)
	if !ok {
		return PlasticInfo{}, false
	}
	info, ok := plasticCatalog[code]
	return info, ok
}

// PlasticCatalog returns every known resin code in class-id order
func PlasticCatalog() []PlasticInfo {
	out := make([]PlasticInfo, 0, len(plasticCatalog))
	for _, code := range ResinCodes() {
		out = append(out, plasticCatalog[code])
	}
	return out
}

// Advice is the recycling hint shown for a detected resin code
func (p PlasticInfo) Advice() string {
	if p.Recyclable {
		return fmt.Sprintf("%s is widely recyclable. Rinse before recycling.", p.Code)
	}
	return fmt.Sprintf("%s is difficult to recycle. Check local facilities.", p.Code)
}
