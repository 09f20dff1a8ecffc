// Package sim generates plausible marketplace activity for demo
// seeding and load checks.
package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type Profile struct {
	Username string
	IsArtist bool
	Bio      string
}

type ArtistSpec struct {
	Owner            string
	Name             string
	Genres           []string
	TokenName        string
	TokenSymbol      string
	TokenSupply      int64
	ArtistSharePct   int
	HolderSharePct   int
	TreasurySharePct int
}

type Scenario struct {
	Name     string
	Profiles []Profile
	Artists  []ArtistSpec
	Sources  []string
	Titles   []string
	Types    []string
	Options  [][]string
}

// LaunchNightScenario is the stock demo cast: two artists, a handful of
// fans, and the revenue sources a small label actually sees.
func LaunchNightScenario() Scenario {
	return Scenario{
		Name: "LaunchNight",
		Profiles: []Profile{
			{Username: "aurora", IsArtist: true, Bio: "Synthwave producer from Tallinn"},
			{Username: "novakid", IsArtist: true, Bio: "Lo-fi collective"},
			{Username: "fan_lena", IsArtist: false},
			{Username: "fan_omar", IsArtist: false},
			{Username: "fan_juno", IsArtist: false},
			{Username: "fan_pavel", IsArtist: false},
		},
		Artists: []ArtistSpec{
			{
				Owner: "aurora", Name: "Aurora Vane",
				Genres:    []string{"synthwave", "electronic"},
				TokenName: "Aurora Token", TokenSymbol: "AUR", TokenSupply: 10_000,
				ArtistSharePct: 60, HolderSharePct: 25, TreasurySharePct: 15,
			},
			{
				Owner: "novakid", Name: "Nova Collective",
				Genres:    []string{"lofi", "ambient"},
				TokenName: "Nova Token", TokenSymbol: "NOVA", TokenSupply: 5_000,
				ArtistSharePct: 50, HolderSharePct: 40, TreasurySharePct: 10,
			},
		},
		Sources: []string{"bandcamp", "tour", "merch", "sync_license", "vinyl"},
		Titles: []string{
			"Which city closes the tour?",
			"Pick the lead single",
			"Vinyl or cassette for the B-sides?",
			"Next collab partner",
		},
		Types: []string{"business", "release", "creative", "partnership"},
		Options: [][]string{
			{"Berlin", "Warsaw", "Riga"},
			{"Neon Drift", "Glass City"},
			{"Vinyl", "Cassette", "Both"},
			{"Kaja Lume", "Midnight Parallel"},
		},
	}
}

// Purchase is one simulated token acquisition.
type Purchase struct {
	Fan    string
	Artist string
	Amount int64
	Ref    string
}

// Revenue is one simulated royalty line. Amount is a decimal string the
// way upstream statements deliver it.
type Revenue struct {
	Artist string
	Amount string
	Source string
}

// ProposalDraft is one simulated governance question.
type ProposalDraft struct {
	Artist  string
	Title   string
	Type    string
	Options []string
	EndDate time.Time
}

// Generator draws scenario events from a seeded source. Safe for
// concurrent use, so seeding workers can share one instance.
type Generator struct {
	scenario Scenario

	mu  sync.Mutex
	rnd *rand.Rand
	seq int
}

func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{scenario: LaunchNightScenario(), rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Scenario() Scenario { return g.scenario }

// NextPurchase pairs a random fan with a random artist. Refs are unique
// per generator, mirroring upstream checkout session ids.
func (g *Generator) NextPurchase() Purchase {
	g.mu.Lock()
	defer g.mu.Unlock()
	fans := g.fans()
	artist := g.scenario.Artists[g.rnd.Intn(len(g.scenario.Artists))]
	g.seq++
	return Purchase{
		Fan:    fans[g.rnd.Intn(len(fans))],
		Artist: artist.Name,
		Amount: int64(g.rnd.Intn(400) + 10),
		Ref:    fmt.Sprintf("sim-%06d", g.seq),
	}
}

// NextRevenue draws an amount between 50.00 and 2050.00.
func (g *Generator) NextRevenue() Revenue {
	g.mu.Lock()
	defer g.mu.Unlock()
	artist := g.scenario.Artists[g.rnd.Intn(len(g.scenario.Artists))]
	cents := int64(g.rnd.Intn(200_000) + 5_000)
	return Revenue{
		Artist: artist.Name,
		Amount: fmt.Sprintf("%d.%02d", cents/100, cents%100),
		Source: g.scenario.Sources[g.rnd.Intn(len(g.scenario.Sources))],
	}
}

func (g *Generator) NextProposal() ProposalDraft {
	g.mu.Lock()
	defer g.mu.Unlock()
	artist := g.scenario.Artists[g.rnd.Intn(len(g.scenario.Artists))]
	i := g.rnd.Intn(len(g.scenario.Titles))
	return ProposalDraft{
		Artist:  artist.Name,
		Title:   g.scenario.Titles[i],
		Type:    g.scenario.Types[i],
		Options: append([]string(nil), g.scenario.Options[i]...),
		EndDate: time.Now().UTC().Add(time.Duration(g.rnd.Intn(21)+7) * 24 * time.Hour),
	}
}

func (g *Generator) fans() []string {
	var fans []string
	for _, p := range g.scenario.Profiles {
		if !p.IsArtist {
			fans = append(fans, p.Username)
		}
	}
	return fans
}
