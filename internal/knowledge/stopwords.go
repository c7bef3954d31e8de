package knowledge

// stopwordsES holds common Spanish words excluded from keyword generation
// and query analysis.
var stopwordsES = map[string]struct{}{
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {}, "unos": {},
	"unas": {}, "de": {}, "del": {}, "al": {}, "en": {}, "con": {}, "por": {},
	"para": {}, "sin": {}, "sobre": {}, "entre": {}, "hasta": {}, "desde": {},
	"que": {}, "es": {}, "se": {}, "no": {}, "si": {}, "su": {}, "sus": {},
	"lo": {}, "le": {}, "les": {}, "me": {}, "te": {}, "nos": {}, "ya": {},
	"muy": {}, "mas": {}, "pero": {}, "como": {}, "este": {}, "esta": {},
	"estos": {}, "estas": {}, "ese": {}, "esa": {}, "esos": {}, "esas": {},
	"aquel": {}, "aquella": {}, "ser": {}, "estar": {}, "haber": {},
	"tener": {}, "hacer": {}, "poder": {}, "decir": {}, "ir": {}, "ver": {},
	"dar": {}, "saber": {}, "querer": {}, "llegar": {}, "hay": {}, "son": {},
	"fue": {}, "han": {}, "tiene": {}, "puede": {}, "hace": {}, "cada": {},
	"todo": {}, "toda": {}, "todos": {}, "todas": {}, "otro": {}, "otra": {},
	"otros": {}, "otras": {}, "mismo": {}, "misma": {}, "donde": {},
	"cuando": {}, "quien": {}, "cual": {}, "tambien": {}, "asi": {},
	"bien": {}, "solo": {}, "aqui": {}, "ahi": {}, "alla": {}, "entonces": {},
	"despues": {}, "antes": {}, "siempre": {}, "nunca": {}, "nada": {},
	"algo": {}, "alguien": {}, "nadie": {}, "mucho": {}, "poco": {},
	"tanto": {}, "tan": {}, "cuyo": {}, "cuya": {}, "porque": {}, "pues": {},
}

// IsStopword reports whether a normalized word is a Spanish stopword.
func IsStopword(w string) bool {
	_, ok := stopwordsES[w]
	return ok
}
