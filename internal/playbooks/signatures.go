package playbooks

import "strings"

// TakeoverSignature identifies an abandoned third-party resource by a
// CNAME suffix, response body markers, and accepted status codes.
// Ported as a Go slice literal from
// original_source/app/core/signatures.py's TAKEOVER_SIGNATURES (same 8
// services, same suffixes/markers/codes).
type TakeoverSignature struct {
	Service      string
	CNAMESuffix  []string
	BodyMarkers  []string
	StatusCodes  []int
}

var takeoverSignatures = []TakeoverSignature{
	{
		Service:     "Heroku",
		CNAMESuffix: []string{".herokuapp.com", ".herokudns.com"},
		BodyMarkers: []string{"no such app", "there is no app configured at that hostname"},
		StatusCodes: []int{404, 502, 503},
	},
	{
		Service:     "GitHub Pages",
		CNAMESuffix: []string{".github.io"},
		BodyMarkers: []string{"there isn't a github pages site here"},
		StatusCodes: []int{404},
	},
	{
		Service:     "AWS S3 (Website)",
		CNAMESuffix: []string{".s3-website-", ".s3-website."},
		BodyMarkers: []string{"the specified bucket does not exist", "no such bucket"},
		StatusCodes: []int{404},
	},
	{
		Service:     "Azure (Web App / Front Door)",
		CNAMESuffix: []string{".azurewebsites.net", ".trafficmanager.net", ".azurefd.net"},
		BodyMarkers: []string{"404 web site not found", "the resource you are looking for has been removed"},
		StatusCodes: []int{404},
	},
	{
		Service:     "Pantheon",
		CNAMESuffix: []string{".pantheonsite.io"},
		BodyMarkers: []string{"the gods are wise", "but do not know of the site which you seek"},
		StatusCodes: []int{404},
	},
	{
		Service:     "Tumblr",
		CNAMESuffix: []string{".tumblr.com"},
		BodyMarkers: []string{"whatever you were looking for doesn't currently exist at this address"},
		StatusCodes: []int{404},
	},
	{
		Service:     "Shopify",
		CNAMESuffix: []string{".myshopify.com"},
		BodyMarkers: []string{"sorry, this shop is currently unavailable"},
		StatusCodes: []int{404},
	},
	{
		Service:     "Zendesk",
		CNAMESuffix: []string{".zendesk.com"},
		BodyMarkers: []string{"help center closed"},
		StatusCodes: []int{404},
	},
}

// matchTakeoverSignature finds the signature whose CNAME suffix the
// given cname matches, mirroring match_takeover_signature's strict
// DNS-boundary comparison (exact match or suffix preceded by a dot).
func matchTakeoverSignature(cname string) *TakeoverSignature {
	if cname == "" {
		return nil
	}
	c := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(cname)), ".")

	for i := range takeoverSignatures {
		sig := &takeoverSignatures[i]
		for _, suf := range sig.CNAMESuffix {
			s := strings.Trim(strings.ToLower(suf), ".")
			if c == s || strings.HasSuffix(c, "."+s) {
				return sig
			}
		}
	}
	return nil
}

func bodyContainsMarker(body string, markers []string) bool {
	b := strings.ToLower(body)
	for _, m := range markers {
		if strings.Contains(b, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func statusInSet(status int, set []int) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}
