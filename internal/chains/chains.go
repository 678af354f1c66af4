// Package chains holds the table of supermarket chains the fetcher knows
// about, with the retrieval token each one is published under.
package chains

import "github.com/drstein77/chainprices/internal/models"

// Chain describes one retailer.
type Chain struct {
	ID    string
	Name  string
	Token string
}

var table = []Chain{
	{ID: "shufersal", Name: "שופרסל", Token: "SHUFERSAL"},
	{ID: "rami_levy", Name: "רמי לוי", Token: "RAMI_LEVY"},
	{ID: "victory", Name: "ויקטורי", Token: "VICTORY"},
	{ID: "yeinot_bitan", Name: "יינות ביתן", Token: "YAYNO_BITAN"},
	{ID: "mega", Name: "מגה", Token: "MEGA"},
	{ID: "osher_ad", Name: "אושר עד", Token: "OSHER_AD"},
	{ID: "hazi_hinam", Name: "חצי חינם", Token: "HAZI_HINAM"},
	{ID: "tiv_taam", Name: "טיב טעם", Token: "TIV_TAAM"},
	{ID: "yohananof", Name: "יוחננוף", Token: "YOHANANOF"},
	{ID: "good_pharm", Name: "גוד פארם", Token: "GOOD_PHARM"},
	{ID: "freshmarket", Name: "פרש מרקט", Token: "FRESHMARKET"},
	{ID: "keshet", Name: "קשת טעמים", Token: "KESHET"},
	{ID: "bareket", Name: "ברקת", Token: "BAREKET"},
	{ID: "stop_market", Name: "סטופ מרקט", Token: "STOP_MARKET"},
	{ID: "politzer", Name: "פוליצר", Token: "POLITZER"},
	{ID: "zol_vbegadol", Name: "זול ובגדול", Token: "ZOL_VBEGADOL"},
	{ID: "super_yuda", Name: "סופר יודא", Token: "SUPER_YUDA"},
}

// Defaults is the subset fetched when no chain is requested.
var Defaults = []string{"shufersal", "rami_levy", "victory", "yeinot_bitan", "osher_ad"}

// Lookup returns the chain registered under id.
func Lookup(id string) (Chain, bool) {
	for _, c := range table {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

// All returns the chain table in declaration order.
func All() []Chain {
	out := make([]Chain, len(table))
	copy(out, table)
	return out
}

// List builds the --list output.
func List() models.ChainList {
	list := models.ChainList{Chains: make([]models.ChainInfo, 0, len(table))}
	for _, c := range table {
		list.Chains = append(list.Chains, models.ChainInfo{ID: c.ID, Name: c.Name})
	}
	return list
}
