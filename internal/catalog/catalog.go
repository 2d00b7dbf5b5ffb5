// Package catalog provides the static instrument/sector/index fixture the
// simulation core runs against. Seeding a real catalog from an external
// source is outside the core's scope; this package exists so the core has
// something to tick against in tests and local runs.
package catalog

import "github.com/ndrandal/marketsim/internal/model"

// Catalog is a snapshot-independent description of the universe: which
// instruments exist, which sector each belongs to, and how indices are
// composed from them.
type Catalog struct {
	Sectors     []model.Sector
	Instruments []model.Instrument
	Indices     []model.Index
	Constituents []model.IndexConstituent
}

// Default returns the built-in fixture: 7 sectors, 30 instruments, and two
// indices (a broad cap-weighted index and a tech-sector index).
func Default() Catalog {
	sectors := []model.Sector{
		{Code: "TECH", Name: "Technology", Beta: 1.3},
		{Code: "FIN", Name: "Finance", Beta: 0.8},
		{Code: "HLTH", Name: "Healthcare", Beta: 0.6},
		{Code: "NRG", Name: "Energy", Beta: 1.1},
		{Code: "CNS", Name: "Consumer", Beta: 0.8},
		{Code: "IND", Name: "Industrial", Beta: 1.0},
		{Code: "ETF", Name: "Broad ETF", Beta: 0.5},
	}

	instruments := []model.Instrument{
		{Symbol: "NEXO", Name: "Nexo Dynamics Inc", SectorCode: "TECH", MarketCap: 42_000_000_000, Beta: 1.4, SigmaAnnual: 0.45, Price: 185.00, PrevClose: 185.00},
		{Symbol: "QBIT", Name: "Qbit Quantum Corp", SectorCode: "TECH", MarketCap: 18_500_000_000, Beta: 1.6, SigmaAnnual: 0.55, Price: 92.50, PrevClose: 92.50},
		{Symbol: "FLUX", Name: "Flux Systems Ltd", SectorCode: "TECH", MarketCap: 65_000_000_000, Beta: 1.3, SigmaAnnual: 0.40, Price: 310.00, PrevClose: 310.00},
		{Symbol: "SYNK", Name: "Synk Networks Inc", SectorCode: "TECH", MarketCap: 12_000_000_000, Beta: 1.5, SigmaAnnual: 0.50, Price: 67.25, PrevClose: 67.25},
		{Symbol: "PULS", Name: "Puls Digital Corp", SectorCode: "TECH", MarketCap: 29_000_000_000, Beta: 1.2, SigmaAnnual: 0.38, Price: 145.00, PrevClose: 145.00},
		{Symbol: "CYRA", Name: "Cyra Robotics Inc", SectorCode: "TECH", MarketCap: 51_000_000_000, Beta: 1.7, SigmaAnnual: 0.58, Price: 220.00, PrevClose: 220.00},

		{Symbol: "LEDG", Name: "Ledger Capital Group", SectorCode: "FIN", MarketCap: 21_000_000_000, Beta: 0.8, SigmaAnnual: 0.25, Price: 78.50, PrevClose: 78.50},
		{Symbol: "VALT", Name: "Vault Securities Inc", SectorCode: "FIN", MarketCap: 33_000_000_000, Beta: 0.7, SigmaAnnual: 0.22, Price: 125.00, PrevClose: 125.00},
		{Symbol: "CRDT", Name: "Credt Financial Corp", SectorCode: "FIN", MarketCap: 14_000_000_000, Beta: 0.9, SigmaAnnual: 0.27, Price: 52.00, PrevClose: 52.00},
		{Symbol: "MNTX", Name: "Mintex Banking Corp", SectorCode: "FIN", MarketCap: 44_000_000_000, Beta: 0.6, SigmaAnnual: 0.20, Price: 165.00, PrevClose: 165.00},
		{Symbol: "FNDX", Name: "Fundex Asset Mgmt", SectorCode: "FIN", MarketCap: 19_000_000_000, Beta: 0.8, SigmaAnnual: 0.24, Price: 88.75, PrevClose: 88.75},

		{Symbol: "HELX", Name: "Helix Biomedical Inc", SectorCode: "HLTH", MarketCap: 38_000_000_000, Beta: 0.5, SigmaAnnual: 0.18, Price: 195.00, PrevClose: 195.00},
		{Symbol: "CURA", Name: "Cura Therapeutics", SectorCode: "HLTH", MarketCap: 15_000_000_000, Beta: 0.6, SigmaAnnual: 0.20, Price: 72.00, PrevClose: 72.00},
		{Symbol: "GENX", Name: "GenX Genomics Corp", SectorCode: "HLTH", MarketCap: 27_000_000_000, Beta: 0.7, SigmaAnnual: 0.23, Price: 148.50, PrevClose: 148.50},
		{Symbol: "BIOS", Name: "Bios Pharma Ltd", SectorCode: "HLTH", MarketCap: 11_000_000_000, Beta: 0.5, SigmaAnnual: 0.17, Price: 55.25, PrevClose: 55.25},

		{Symbol: "VOLT", Name: "Volt Energy Corp", SectorCode: "NRG", MarketCap: 20_000_000_000, Beta: 1.1, SigmaAnnual: 0.30, Price: 98.00, PrevClose: 98.00},
		{Symbol: "SOLR", Name: "Solaris Power Inc", SectorCode: "NRG", MarketCap: 8_500_000_000, Beta: 1.0, SigmaAnnual: 0.28, Price: 42.50, PrevClose: 42.50},
		{Symbol: "FUSE", Name: "Fuse Petroleum Ltd", SectorCode: "NRG", MarketCap: 34_000_000_000, Beta: 1.2, SigmaAnnual: 0.32, Price: 175.00, PrevClose: 175.00},
		{Symbol: "WATT", Name: "Watt Grid Systems", SectorCode: "NRG", MarketCap: 12_500_000_000, Beta: 1.0, SigmaAnnual: 0.27, Price: 63.00, PrevClose: 63.00},

		{Symbol: "BRND", Name: "Brand Global Inc", SectorCode: "CNS", MarketCap: 22_000_000_000, Beta: 0.8, SigmaAnnual: 0.24, Price: 112.00, PrevClose: 112.00},
		{Symbol: "LUXE", Name: "Luxe Retail Corp", SectorCode: "CNS", MarketCap: 57_000_000_000, Beta: 0.7, SigmaAnnual: 0.22, Price: 285.00, PrevClose: 285.00},
		{Symbol: "DLVR", Name: "Deliver Express Inc", SectorCode: "CNS", MarketCap: 15_500_000_000, Beta: 0.9, SigmaAnnual: 0.26, Price: 78.00, PrevClose: 78.00},
		{Symbol: "RSTK", Name: "Restock Supply Corp", SectorCode: "CNS", MarketCap: 9_000_000_000, Beta: 0.8, SigmaAnnual: 0.25, Price: 45.50, PrevClose: 45.50},

		{Symbol: "FORG", Name: "Forge Manufacturing", SectorCode: "IND", MarketCap: 26_000_000_000, Beta: 1.0, SigmaAnnual: 0.26, Price: 132.00, PrevClose: 132.00},
		{Symbol: "BLDR", Name: "Builder Heavy Ind", SectorCode: "IND", MarketCap: 17_000_000_000, Beta: 1.1, SigmaAnnual: 0.28, Price: 88.00, PrevClose: 88.00},
		{Symbol: "MACH", Name: "Mach Precision Corp", SectorCode: "IND", MarketCap: 41_000_000_000, Beta: 1.0, SigmaAnnual: 0.24, Price: 205.00, PrevClose: 205.00},
		{Symbol: "ALOY", Name: "Aloy Materials Inc", SectorCode: "IND", MarketCap: 11_000_000_000, Beta: 1.2, SigmaAnnual: 0.29, Price: 56.75, PrevClose: 56.75},

		{Symbol: "MKTS", Name: "Markets Broad ETF", SectorCode: "ETF", MarketCap: 0, Beta: 1.0, SigmaAnnual: 0.12, Price: 350.00, PrevClose: 350.00},
		{Symbol: "GRWT", Name: "Growth Select ETF", SectorCode: "ETF", MarketCap: 0, Beta: 1.1, SigmaAnnual: 0.15, Price: 180.00, PrevClose: 180.00},
		{Symbol: "DIVY", Name: "Dividend Yield ETF", SectorCode: "ETF", MarketCap: 0, Beta: 0.8, SigmaAnnual: 0.11, Price: 95.00, PrevClose: 95.00},
	}

	indices := []model.Index{
		{Code: "MKT30", Name: "Market 30 Composite", BaseValue: 1000.0, Method: model.MethodCapWeighted, Value: 1000.0, PrevClose: 1000.0},
		{Code: "TECH6", Name: "Technology Sector Index", BaseValue: 500.0, Method: model.MethodCapWeighted, Value: 500.0, PrevClose: 500.0},
	}

	var constituents []model.IndexConstituent
	totalCap := int64(0)
	for _, inst := range instruments {
		if inst.SectorCode == "ETF" {
			continue
		}
		totalCap += inst.MarketCap
	}
	for _, inst := range instruments {
		if inst.SectorCode == "ETF" {
			continue
		}
		w := float64(inst.MarketCap) / float64(totalCap)
		if w > 0.10 {
			w = 0.10
		}
		constituents = append(constituents, model.IndexConstituent{
			IndexCode: "MKT30", Symbol: inst.Symbol, Weight: w, Active: true,
		})
	}
	// Renormalize MKT30 weights to sum to 1.0 after the single-name cap.
	normalizeWeights(constituents, "MKT30")

	techCap := int64(0)
	for _, inst := range instruments {
		if inst.SectorCode == "TECH" {
			techCap += inst.MarketCap
		}
	}
	for _, inst := range instruments {
		if inst.SectorCode != "TECH" {
			continue
		}
		w := float64(inst.MarketCap) / float64(techCap)
		constituents = append(constituents, model.IndexConstituent{
			IndexCode: "TECH6", Symbol: inst.Symbol, Weight: w, Active: true,
		})
	}

	return Catalog{
		Sectors:      sectors,
		Instruments:  instruments,
		Indices:      indices,
		Constituents: constituents,
	}
}

func normalizeWeights(cs []model.IndexConstituent, indexCode string) {
	total := 0.0
	for i := range cs {
		if cs[i].IndexCode == indexCode {
			total += cs[i].Weight
		}
	}
	if total == 0 {
		return
	}
	for i := range cs {
		if cs[i].IndexCode == indexCode {
			cs[i].Weight /= total
		}
	}
}
