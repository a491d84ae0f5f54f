package etl

import (
	"maps"
	"slices"
)

var defaultSectors = map[string]string{
	"TOTXMEMO": "Total (excluding memo items)",
	"CRF1":     "Energy",
	"CRF2":     "Industrial processes and product use",
	"CRF3":     "Agriculture",
	"CRF4":     "Land use, land use change  and forestry (LULUCF)",
	"CRF5":     "Waste management",
	"CRF6":     "Other sectors",
}

var defaultCountries = map[string]string{
	"BE": "Belgium", "BG": "Bulgaria", "CZ": "Czechia",
	"DK": "Denmark", "DE": "Germany", "EE": "Estonia",
	"IE": "Ireland", "EL": "Greece", "ES": "Spain",
	"FR": "France", "HR": "Croatia", "IT": "Italy",
	"CY": "Cyprus", "LV": "Latvia", "LT": "Lithuania",
	"LU": "Luxembourg", "HU": "Hungary", "MT": "Malta",
	"NL": "Netherlands", "AT": "Austria", "PL": "Poland",
	"PT": "Portugal", "RO": "Romania", "SI": "Slovenia",
	"SK": "Slovakia", "FI": "Finland", "SE": "Sweden",
	"NO": "Norway", "IS": "Iceland",
	"EU27_2020": "EU (27 countries, from 2020)",
}

// Lookups maps eurostat sector and geo codes to display names. It is immutable once built.
type Lookups struct {
	sectors   map[string]string
	countries map[string]string
}

// DefaultLookups covers the major inventory sectors and the EU27, EFTA reporting countries
func DefaultLookups() Lookups {
	return NewLookups(defaultSectors, defaultCountries)
}

func NewLookups(sectors, countries map[string]string) Lookups {
	return Lookups{
		sectors:   maps.Clone(sectors),
		countries: maps.Clone(countries),
	}
}

func (l Lookups) Sector(code string) (string, bool) {
	name, ok := l.sectors[code]
	return name, ok
}

func (l Lookups) Country(code string) (string, bool) {
	name, ok := l.countries[code]
	return name, ok
}

// SectorCodes returns the known sector codes in ascending order
func (l Lookups) SectorCodes() []string {
	return slices.Sorted(maps.Keys(l.sectors))
}

// CountryCodes returns the known geo codes in ascending order
func (l Lookups) CountryCodes() []string {
	return slices.Sorted(maps.Keys(l.countries))
}
