package Database

// ImageEntry is the search document stored for every image of the dataset.
type ImageEntry struct {
	ID       string `json:"ID"`
	Class    string `json:"Class"`
	Split    string `json:"Split"`
	Filename string `json:"Filename"`
	PHash    string `json:"PHash"`
	Size     int64  `json:"Size"`
	Width    int    `json:"Width"`
	Height   int    `json:"Height"`
	Added    string `json:"Added"`
}
