package domain

import (
	"testing"
)

func TestNewTileSet(t *testing.T) {
	tiles := NewTileSet()
	if len(tiles) != TileSetSize {
		t.Fatalf("set size = %d, want %d", len(tiles), TileSetSize)
	}

	seen := make(map[[2]int]bool)
	for _, tile := range tiles {
		if tile.A < 0 || tile.A > MaxPip || tile.B < 0 || tile.B > MaxPip {
			t.Fatalf("tile %v out of pip range", tile)
		}
		k := tile.key()
		if seen[k] {
			t.Fatalf("duplicate tile %v", tile)
		}
		seen[k] = true
	}
}

func TestTileEqualsIgnoresOrientation(t *testing.T) {
	if !(Tile{A: 2, B: 5}).Equals(Tile{A: 5, B: 2}) {
		t.Fatalf("unordered pair should compare equal")
	}
	if (Tile{A: 2, B: 5}).Equals(Tile{A: 5, B: 5}) {
		t.Fatalf("distinct tiles should not compare equal")
	}
}

func TestDealPartitionsFullSet(t *testing.T) {
	tests := []struct {
		name      string
		seats     int
		perSeat   int
		wantPile  int
	}{
		{name: "heads-up", seats: 2, perSeat: 9, wantPile: 10},
		{name: "three seats", seats: 3, perSeat: 7, wantPile: 7},
		{name: "four seats", seats: 4, perSeat: 7, wantPile: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hands, pile, err := Deal(tt.seats, tt.perSeat)
			if err != nil {
				t.Fatalf("deal error: %v", err)
			}
			if len(pile) != tt.wantPile {
				t.Fatalf("pile size = %d, want %d", len(pile), tt.wantPile)
			}

			seen := make(map[[2]int]bool)
			total := 0
			for _, hand := range hands {
				if len(hand) != tt.perSeat {
					t.Fatalf("hand size = %d, want %d", len(hand), tt.perSeat)
				}
				for _, tile := range hand {
					if seen[tile.key()] {
						t.Fatalf("tile %v dealt twice", tile)
					}
					seen[tile.key()] = true
					total++
				}
			}
			for _, tile := range pile {
				if seen[tile.key()] {
					t.Fatalf("tile %v in both hand and pile", tile)
				}
				seen[tile.key()] = true
				total++
			}
			if total != TileSetSize {
				t.Fatalf("tiles accounted = %d, want %d", total, TileSetSize)
			}
		})
	}
}

func TestDealRejectsOversizedConfig(t *testing.T) {
	if _, _, err := Deal(4, 8); err == nil {
		t.Fatalf("expected error for 4x8 deal")
	}
}

func TestSecureShufflePreservesSet(t *testing.T) {
	tiles := NewTileSet()
	SecureShuffle(tiles)

	if len(tiles) != TileSetSize {
		t.Fatalf("shuffle changed length to %d", len(tiles))
	}
	seen := make(map[[2]int]bool)
	for _, tile := range tiles {
		if seen[tile.key()] {
			t.Fatalf("shuffle duplicated tile %v", tile)
		}
		seen[tile.key()] = true
	}
}

func TestRemainingPips(t *testing.T) {
	hand := []Tile{{A: 6, B: 6}, {A: 0, B: 3}, {A: 1, B: 2}}
	if got := RemainingPips(hand); got != 18 {
		t.Fatalf("remaining pips = %d, want 18", got)
	}
	if got := RemainingPips(nil); got != 0 {
		t.Fatalf("remaining pips of empty hand = %d, want 0", got)
	}
}

func TestRemoveTileUnordered(t *testing.T) {
	hand := []Tile{{A: 2, B: 5}, {A: 1, B: 1}}
	out, ok := RemoveTile(hand, Tile{A: 5, B: 2})
	if !ok {
		t.Fatalf("expected removal to succeed for flipped tile")
	}
	if len(out) != 1 || !out[0].Equals(Tile{A: 1, B: 1}) {
		t.Fatalf("unexpected hand after removal: %v", out)
	}

	if _, ok := RemoveTile(out, Tile{A: 6, B: 6}); ok {
		t.Fatalf("removal of absent tile should fail")
	}
}
