package usgeo

// stateNames maps USPS codes to full state names. Covers the 50
// states, DC, and Puerto Rico.
var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut",
	"DE": "Delaware", "DC": "District of Columbia", "FL": "Florida",
	"GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky",
	"LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana",
	"NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire",
	"NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania",
	"PR": "Puerto Rico", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas",
	"UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin",
	"WY": "Wyoming",
}

var nameToCode = func() map[string]string {
	m := make(map[string]string, len(stateNames))
	for code, name := range stateNames {
		m[normalizeName(name)] = code
	}
	return m
}()

func normalizeName(name string) string {
	upper := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = append(upper, c)
	}
	return string(upper)
}

// stateBounds holds approximate bounding boxes per state. Precision is
// deliberately coarse: the boxes answer "could this coordinate be in
// the claimed state" for validation, not cartography.
var stateBounds = map[string]Bounds{
	"AL": {30.14, 35.01, -88.48, -84.89},
	"AK": {51.21, 71.44, -179.15, -129.98},
	"AZ": {31.33, 37.00, -114.82, -109.04},
	"AR": {33.00, 36.50, -94.62, -89.64},
	"CA": {32.53, 42.01, -124.42, -114.13},
	"CO": {36.99, 41.01, -109.06, -102.04},
	"CT": {40.95, 42.05, -73.73, -71.78},
	"DE": {38.45, 39.84, -75.79, -75.04},
	"DC": {38.79, 39.00, -77.12, -76.90},
	"FL": {24.40, 31.00, -87.64, -79.97},
	"GA": {30.36, 35.00, -85.61, -80.75},
	"HI": {18.86, 22.24, -160.25, -154.80},
	"ID": {41.99, 49.00, -117.24, -111.04},
	"IL": {36.97, 42.51, -91.51, -87.02},
	"IN": {37.77, 41.76, -88.10, -84.78},
	"IA": {40.36, 43.50, -96.64, -90.14},
	"KS": {36.99, 40.00, -102.05, -94.59},
	"KY": {36.50, 39.15, -89.57, -81.96},
	"LA": {28.92, 33.02, -94.04, -88.82},
	"ME": {42.98, 47.46, -71.08, -66.93},
	"MD": {37.89, 39.72, -79.49, -75.05},
	"MA": {41.24, 42.89, -73.51, -69.93},
	"MI": {41.70, 48.31, -90.42, -82.12},
	"MN": {43.50, 49.38, -97.24, -89.48},
	"MS": {30.17, 35.00, -91.66, -88.10},
	"MO": {35.99, 40.61, -95.77, -89.10},
	"MT": {44.36, 49.00, -116.05, -104.04},
	"NE": {39.99, 43.00, -104.05, -95.31},
	"NV": {35.00, 42.00, -120.01, -114.04},
	"NH": {42.70, 45.31, -72.56, -70.61},
	"NJ": {38.93, 41.36, -75.56, -73.89},
	"NM": {31.33, 37.00, -109.05, -103.00},
	"NY": {40.50, 45.02, -79.76, -71.85},
	"NC": {33.84, 36.59, -84.32, -75.46},
	"ND": {45.93, 49.00, -104.05, -96.55},
	"OH": {38.40, 41.98, -84.82, -80.52},
	"OK": {33.62, 37.00, -103.00, -94.43},
	"OR": {41.99, 46.29, -124.57, -116.46},
	"PA": {39.72, 42.27, -80.52, -74.69},
	"PR": {17.88, 18.52, -67.95, -65.22},
	"RI": {41.15, 42.02, -71.86, -71.12},
	"SC": {32.03, 35.22, -83.35, -78.54},
	"SD": {42.48, 45.95, -104.06, -96.44},
	"TN": {34.98, 36.68, -90.31, -81.65},
	"TX": {25.84, 36.50, -106.65, -93.51},
	"UT": {36.99, 42.00, -114.05, -109.04},
	"VT": {42.73, 45.02, -73.44, -71.46},
	"VA": {36.54, 39.47, -83.68, -75.24},
	"WA": {45.54, 49.00, -124.85, -116.92},
	"WV": {37.20, 40.64, -82.64, -77.72},
	"WI": {42.49, 47.08, -92.89, -86.25},
	"WY": {40.99, 45.01, -111.06, -104.05},
}

// stateCentroids holds the published geographic center of each state
// as {latitude, longitude}.
var stateCentroids = map[string][2]float64{
	"AL": {32.7794, -86.8287},
	"AK": {64.0685, -152.2782},
	"AZ": {34.2744, -111.6602},
	"AR": {34.8938, -92.4426},
	"CA": {37.1841, -119.4696},
	"CO": {38.9972, -105.5478},
	"CT": {41.6219, -72.7273},
	"DE": {38.9896, -75.5050},
	"DC": {38.9101, -77.0147},
	"FL": {28.6305, -82.4497},
	"GA": {32.6415, -83.4426},
	"HI": {20.2927, -156.3737},
	"ID": {44.3509, -114.6130},
	"IL": {40.0417, -89.1965},
	"IN": {39.8942, -86.2816},
	"IA": {42.0751, -93.4960},
	"KS": {38.4937, -98.3804},
	"KY": {37.5347, -85.3021},
	"LA": {31.0689, -91.9968},
	"ME": {45.3695, -69.2428},
	"MD": {39.0550, -76.7909},
	"MA": {42.2596, -71.8083},
	"MI": {44.3467, -85.4102},
	"MN": {46.2807, -94.3053},
	"MS": {32.7364, -89.6678},
	"MO": {38.3566, -92.4580},
	"MT": {47.0527, -109.6333},
	"NE": {41.5378, -99.7951},
	"NV": {39.3289, -116.6312},
	"NH": {43.6805, -71.5811},
	"NJ": {40.1907, -74.6728},
	"NM": {34.4071, -106.1126},
	"NY": {42.9538, -75.5268},
	"NC": {35.5557, -79.3877},
	"ND": {47.4501, -100.4659},
	"OH": {40.2862, -82.7937},
	"OK": {35.5889, -97.4943},
	"OR": {43.9336, -120.5583},
	"PA": {40.8781, -77.7996},
	"PR": {18.2208, -66.5901},
	"RI": {41.6762, -71.5562},
	"SC": {33.9169, -80.8964},
	"SD": {44.4443, -100.2263},
	"TN": {35.8580, -86.3505},
	"TX": {31.4757, -99.3312},
	"UT": {39.3055, -111.6703},
	"VT": {44.0687, -72.6658},
	"VA": {37.5215, -78.8537},
	"WA": {47.3826, -120.4472},
	"WV": {38.6409, -80.6227},
	"WI": {44.6243, -89.9941},
	"WY": {42.9957, -107.5512},
}
