package itinerary

import (
	"math"
	"strconv"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"
)

var funcs = template.FuncMap{
	"money": money,
	"cents": func(v float64) string { return "$" + strconv.FormatFloat(v, 'f', 2, 64) },
	"title": title,
	"join":  func(items []string) string { return strings.Join(items, ", ") },
}

func money(v float64) string {
	if v == math.Trunc(v) {
		return "$" + strconv.FormatFloat(v, 'f', 0, 64)
	}
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		// templates are fixed and their data types are internal
		panic(err)
	}
	return b.String()
}

var dailyTemplate = template.Must(template.New("daily").Funcs(funcs).Parse(
	`## {{len .Days}}-Day Itinerary for {{.Destination}}

**Budget Range:** {{title (print .Budget)}}
{{- if .Activities}}
**Preferred Activities:** {{join .Activities}}
{{- end}}
{{range .Days}}
### Day {{.Number}} in {{$.Destination}}

**Morning:**
- {{.Morning}}

**Afternoon:**
- {{.Afternoon}}

**Evening:**
- {{.Evening}}

**Accommodation:**
- {{title (print $.Budget)}}-range hotel or guesthouse close to the day's sights

**Transportation:**
- Walk or use public transport between nearby stops; taxi for longer hops

**Budget Estimate:**
- About {{money .Budget}} per traveler (accommodation, food and activities)

---
{{end}}`))

var zoningTemplate = template.Must(template.New("zoning").Funcs(funcs).Parse(
	`## Location-Optimized Itinerary for {{.City}}

### Attractions to Visit:
{{join .Attractions}}

### Optimized Route Suggestions:

**Zone 1 - City Center/Downtown:**
- Group nearby attractions in the city center
- Recommended duration: Half day
- Transportation: Walking or public transport

**Zone 2 - Cultural District:**
- Museums, galleries, and cultural sites
- Recommended duration: Full day
- Transportation: Public transport or taxi

**Zone 3 - Recreational Areas:**
- Parks, outdoor activities, and scenic spots
- Recommended duration: Half to full day
- Transportation: May require private transport

### Travel Tips:
- Start early to maximize time at each location
- Book tickets in advance for popular attractions
- Check opening hours and days
- Consider purchasing city tourist passes for discounts

### Estimated Timeline:
- Allow 2-3 hours per major attraction
- Include travel time between zones (30-60 minutes)
- Factor in meal breaks and rest periods
`))

var budgetTemplate = template.Must(template.New("budget").Funcs(funcs).Parse(
	`## Budget Breakdown for {{.Destination}}

**Trip Details:**
- Destination: {{.Destination}}
- Duration: {{.Days}} days
- Travelers: {{.Travelers}} person(s)
- Budget Category: {{title (print .Category)}}

### Cost Breakdown:

**Accommodation:**
- {{money .Rates.Accommodation}}/night × {{.Days}} nights = {{money .Accommodation}}

**Food & Dining:**
- {{money .Rates.Food}}/person/day × {{.Travelers}} travelers × {{.Days}} days = {{money .Food}}

**Transportation:**
- {{money .Rates.Transport}}/person = {{money .Transport}}

**Activities & Attractions:**
- {{money .Rates.Activities}}/person/day × {{.Travelers}} travelers × {{.Days}} days = {{money .Activities}}

### Summary:
- **Total Budget:** {{money .Total}}
- **Per Person:** {{cents .PerPerson}}
- **Daily Average:** {{cents .DailyAverage}}

### Budget Tips:
- Book accommodations in advance for better rates
- Look for local restaurants for authentic and affordable meals
- Consider city tourist passes for activity discounts
- Use public transportation when possible
- Set aside 10-15% extra for unexpected expenses

*Note: Prices are estimates and may vary based on season, availability, and specific choices.*
`))

var checklistTemplate = template.Must(template.New("checklist").Funcs(funcs).Parse(
	`## Travel Checklist for {{.Destination}}

**Trip Duration:** {{.Days}} days
**Season:** {{title .Season}}

### Pre-Travel Planning (2-4 weeks before):
- [ ] Book flights and accommodation
- [ ] Check passport validity (6+ months remaining)
- [ ] Apply for visa if required
- [ ] Purchase travel insurance
- [ ] Notify bank of travel plans
- [ ] Research local customs and etiquette
- [ ] Check vaccination requirements
- [ ] Download offline maps and translation apps
- [ ] Book popular attractions in advance

### Packing Essentials:

**Documents:**
- [ ] Passport/ID
- [ ] Travel insurance documents
- [ ] Flight tickets and hotel confirmations
- [ ] Emergency contact information
- [ ] Copies of important documents (stored separately)

**Electronics:**
- [ ] Phone and charger
- [ ] Portable power bank
- [ ] Universal adapter
- [ ] Camera
- [ ] Headphones

**Clothing ({{.Season}} appropriate):**
- [ ] Comfortable walking shoes
- [ ] Weather-appropriate clothing
- [ ] Sleepwear
- [ ] Underwear and socks
- [ ] Light jacket or sweater
- [ ] Formal outfit (if needed)
{{- range .SeasonItems}}
- [ ] {{.}}
{{- end}}

**Health & Personal Care:**
- [ ] Prescription medications
- [ ] First aid kit
- [ ] Sunscreen
- [ ] Personal hygiene items
- [ ] Hand sanitizer
- [ ] Face masks

**Money & Cards:**
- [ ] Local currency
- [ ] Credit/debit cards
- [ ] Emergency cash in USD/EUR
- [ ] Money belt or secure wallet

### Day Before Departure:
- [ ] Check flight status
- [ ] Complete online check-in
- [ ] Pack carry-on essentials
- [ ] Charge all devices
- [ ] Confirm transportation to airport
- [ ] Check weather forecast
- [ ] Review first day itinerary

### Upon Arrival:
- [ ] Get local SIM card or activate roaming
- [ ] Exchange money if needed
- [ ] Download local transportation apps
- [ ] Save emergency numbers
- [ ] Inform family/friends of safe arrival

### Before Returning:
- [ ] Check souvenirs for customs restrictions
- [ ] Confirm return flight details
- [ ] Pack souvenirs securely
- [ ] Clear accommodation charges
- [ ] Rate and review accommodations

*Customize this checklist based on your specific destination and travel style.*
`))
