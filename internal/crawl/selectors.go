package crawl

// Selectors are the CSS selectors for listing and article pages.
type Selectors struct {
	// Listing page.
	Card      string
	CardTime  string
	CardTitle string
	NextPage  string

	// Article page.
	Title      string
	Author     string
	Date       string
	Paragraphs string
	Tags       string
	Images     string
}

// TechCrunchSelectors matches the WordPress block theme techcrunch.com uses.
func TechCrunchSelectors() Selectors {
	return Selectors{
		Card:      ".loop-card--default",
		CardTime:  "time[datetime]",
		CardTitle: ".loop-card__title-link",
		NextPage:  ".wp-block-query-pagination-next",

		Title:      ".wp-block-post-title",
		Author:     ".wp-block-post-author__name",
		Date:       "time.wp-block-post-date[datetime]",
		Paragraphs: ".wp-block-post-content-is-layout-constrained p",
		Tags:       ".wp-block-post-terms__link",
		Images:     ".wp-block-post-content-is-layout-constrained img[src]",
	}
}

// FieldPolicy switches the optional article fields.
type FieldPolicy struct {
	Tags   bool
	Images bool
}
