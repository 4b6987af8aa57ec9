package kitadir

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/source"
)

var (
	postalCityPattern = regexp.MustCompile(`\b(\d{5})\s+(.+)$`)
	firstNumber       = regexp.MustCompile(`\d+`)
)

// field identifies the Kita attribute a detail label maps to.
type field int

const (
	fieldNone field = iota
	fieldStreet
	fieldAddress
	fieldPostalCode
	fieldCity
	fieldPostalCity
	fieldPhone
	fieldEmail
	fieldWebsite
	fieldOperator
	fieldType
	fieldCapacity
	fieldAgeRange
	fieldOpeningHours
	fieldBezirk
	fieldBundesland
)

var labelFields = map[string]field{
	"straße":              fieldStreet,
	"strasse":             fieldStreet,
	"adresse":             fieldAddress,
	"anschrift":           fieldAddress,
	"plz":                 fieldPostalCode,
	"postleitzahl":        fieldPostalCode,
	"ort":                 fieldCity,
	"stadt":               fieldCity,
	"plz/ort":             fieldPostalCity,
	"plz ort":             fieldPostalCity,
	"telefon":             fieldPhone,
	"tel":                 fieldPhone,
	"e-mail":              fieldEmail,
	"email":               fieldEmail,
	"internet":            fieldWebsite,
	"homepage":            fieldWebsite,
	"webseite":            fieldWebsite,
	"website":             fieldWebsite,
	"träger":              fieldOperator,
	"traeger":             fieldOperator,
	"trägerschaft":        fieldOperator,
	"einrichtungsart":     fieldType,
	"art der einrichtung": fieldType,
	"typ":                 fieldType,
	"plätze":              fieldCapacity,
	"anzahl plätze":       fieldCapacity,
	"betreuungsplätze":    fieldCapacity,
	"kapazität":           fieldCapacity,
	"alter":               fieldAgeRange,
	"altersgruppe":        fieldAgeRange,
	"aufnahmealter":       fieldAgeRange,
	"betreuungsalter":     fieldAgeRange,
	"öffnungszeiten":      fieldOpeningHours,
	"bezirk":              fieldBezirk,
	"stadtteil":           fieldBezirk,
	"bundesland":          fieldBundesland,
}

// schema.org microdata properties some directory templates carry.
var itemprops = map[string]field{
	"streetAddress":   fieldStreet,
	"postalCode":      fieldPostalCode,
	"addressLocality": fieldCity,
	"telephone":       fieldPhone,
	"email":           fieldEmail,
	"url":             fieldWebsite,
	"openingHours":    fieldOpeningHours,
}

// normalizeLabel lowercases a label and strips decoration such as trailing
// colons and extra whitespace.
func normalizeLabel(label string) string {
	label = strings.ToLower(cleanText(label))
	label = strings.TrimRight(label, ": ")
	label = strings.TrimSuffix(label, ".")
	label = strings.ReplaceAll(label, " / ", "/")
	label = strings.ReplaceAll(label, ", ", " ")
	return label
}

// parseDetail maps a detail page onto a Kita. Only the name is mandatory:
// it comes from the heading and falls back to the listing link text.
func parseDetail(doc *goquery.Document, ref domain.KitaRef, sel Selectors) (*domain.Kita, error) {
	root := doc.Find(sel.DetailRoot).First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	name := cleanText(root.Find(sel.DetailName).First().Text())
	if name == "" {
		name = cleanText(ref.Name)
	}
	if name == "" {
		return nil, &source.ParseError{URL: ref.URL, Reason: "facility name not found"}
	}

	kita := &domain.Kita{
		SourceURL: ref.URL,
		Name:      name,
		Bezirk:    ref.Bezirk,
		Extra:     domain.StringMap{},
	}

	eachPair(root, func(label string, value *goquery.Selection) {
		text := cleanText(value.Text())
		key := normalizeLabel(label)
		if text == "" || key == "" {
			return
		}
		f, known := labelFields[key]
		if !known {
			kita.Extra[strings.TrimRight(cleanText(label), ": ")] = text
			return
		}
		apply(kita, f, text, value, doc.Url)
	})

	root.Find("[itemprop]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("itemprop")
		f, ok := itemprops[prop]
		if !ok {
			return
		}
		text := cleanText(s.Text())
		if content, ok := s.Attr("content"); ok && text == "" {
			text = cleanText(content)
		}
		if text == "" && f != fieldWebsite {
			return
		}
		if current := fieldValue(kita, f); current == "" {
			apply(kita, f, text, s, doc.Url)
		}
	})

	if len(kita.Extra) == 0 {
		kita.Extra = nil
	}
	return kita, nil
}

// eachPair walks label/value pairs from tables (th+td or td+td) and
// definition lists.
func eachPair(root *goquery.Selection, fn func(label string, value *goquery.Selection)) {
	root.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Children().Filter("th, td")
		if cells.Length() < 2 {
			return
		}
		fn(cells.Eq(0).Text(), cells.Eq(1))
	})

	root.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			dd := dt.NextFiltered("dd")
			if dd.Length() == 0 {
				return
			}
			fn(dt.Text(), dd)
		})
	})
}

func apply(k *domain.Kita, f field, text string, value *goquery.Selection, base *url.URL) {
	switch f {
	case fieldStreet:
		k.Street = text
	case fieldAddress:
		applyAddress(k, text)
	case fieldPostalCode:
		k.PostalCode = text
	case fieldCity:
		k.City = text
	case fieldPostalCity:
		if m := postalCityPattern.FindStringSubmatch(text); m != nil {
			k.PostalCode, k.City = m[1], strings.TrimSpace(m[2])
		} else {
			k.City = text
		}
	case fieldPhone:
		k.Phone = text
	case fieldEmail:
		k.Email = linkTarget(value, "mailto:", text, nil)
	case fieldWebsite:
		k.Website = linkTarget(value, "", text, base)
	case fieldOperator:
		k.Operator = text
	case fieldType:
		k.Type = text
	case fieldCapacity:
		if n, err := strconv.Atoi(firstNumber.FindString(text)); err == nil {
			k.Capacity = n
		}
	case fieldAgeRange:
		k.AgeRange = text
	case fieldOpeningHours:
		k.OpeningHours = text
	case fieldBezirk:
		k.Bezirk = text
	case fieldBundesland:
		k.Bundesland = text
	}
}

// applyAddress splits "Musterstraße 1, 10115 Berlin" into street, postal
// code and city. Unrecognised formats land in Street unchanged.
func applyAddress(k *domain.Kita, text string) {
	street, rest, found := strings.Cut(text, ",")
	if !found {
		if m := postalCityPattern.FindStringSubmatchIndex(text); m != nil && m[0] > 0 {
			street, rest = text[:m[0]], text[m[0]:]
		} else {
			k.Street = text
			return
		}
	}
	k.Street = strings.TrimSpace(street)
	if m := postalCityPattern.FindStringSubmatch(strings.TrimSpace(rest)); m != nil {
		k.PostalCode, k.City = m[1], strings.TrimSpace(m[2])
	} else if rest = strings.TrimSpace(rest); rest != "" {
		k.City = rest
	}
}

// linkTarget prefers the href of a nested anchor over the visible text.
// Without a scheme the href is resolved against base.
func linkTarget(value *goquery.Selection, scheme, text string, base *url.URL) string {
	a := value.Find("a[href]").First()
	if value.Is("a[href]") {
		a = value
	}
	href, ok := a.Attr("href")
	if !ok {
		return text
	}
	href = strings.TrimSpace(href)
	if scheme != "" {
		if !strings.HasPrefix(strings.ToLower(href), scheme) {
			return text
		}
		href = href[len(scheme):]
		if i := strings.IndexByte(href, '?'); i >= 0 {
			href = href[:i]
		}
	} else {
		href = resolveURL(base, href)
	}
	if href == "" {
		return text
	}
	return href
}

func fieldValue(k *domain.Kita, f field) string {
	switch f {
	case fieldStreet:
		return k.Street
	case fieldPostalCode:
		return k.PostalCode
	case fieldCity:
		return k.City
	case fieldPhone:
		return k.Phone
	case fieldEmail:
		return k.Email
	case fieldWebsite:
		return k.Website
	case fieldOpeningHours:
		return k.OpeningHours
	}
	return ""
}
