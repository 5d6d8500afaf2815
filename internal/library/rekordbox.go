package library

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/dsoriano/cratesync/internal/shared"
)

type xmlTrack struct {
	TrackID   string `xml:"TrackID,attr"`
	Name      string `xml:"Name,attr"`
	Artist    string `xml:"Artist,attr"`
	Album     string `xml:"Album,attr"`
	Remixer   string `xml:"Remixer,attr"`
	Label     string `xml:"Label,attr"`
	Genre     string `xml:"Genre,attr"`
	TotalTime string `xml:"TotalTime,attr"`
	DateAdded string `xml:"DateAdded,attr"`
}

type xmlNode struct {
	Type   string     `xml:"Type,attr"`
	Name   string     `xml:"Name,attr"`
	Nodes  []xmlNode  `xml:"NODE"`
	Tracks []xmlTrack `xml:"TRACK"`
}

type xmlPlaylistTrack struct {
	Key string `xml:"Key,attr"`
}

type xmlDocument struct {
	Collection struct {
		Tracks []xmlTrack `xml:"TRACK"`
	} `xml:"COLLECTION"`
	Playlists struct {
		Root *xmlPlaylistNode `xml:"NODE"`
	} `xml:"PLAYLISTS"`
}

type xmlPlaylistNode struct {
	Type   string             `xml:"Type,attr"`
	Name   string             `xml:"Name,attr"`
	Nodes  []xmlPlaylistNode  `xml:"NODE"`
	Tracks []xmlPlaylistTrack `xml:"TRACK"`
}

// ParseXML parses a Rekordbox XML export file.
//
// Returns the collection keyed by TrackID and the playlist tree flattened into
// ordered groupings. Folder paths are joined with "/", with the ROOT folder elided.
func ParseXML(path string) (map[string]Track, []Grouping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read library export: %w", err)
	}
	return parseXMLData(data)
}

func parseXMLData(data []byte) (map[string]Track, []Grouping, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrInvalidLibrary, err)
	}

	tracks := make(map[string]Track, len(doc.Collection.Tracks))
	for _, el := range doc.Collection.Tracks {
		duration, _ := strconv.Atoi(el.TotalTime)
		tracks[el.TrackID] = Track{
			ID:        el.TrackID,
			Title:     el.Name,
			Artist:    el.Artist,
			Album:     el.Album,
			Remixer:   el.Remixer,
			Label:     el.Label,
			Genre:     el.Genre,
			Duration:  duration,
			DateAdded: el.DateAdded,
		}
	}

	var groupings []Grouping
	if doc.Playlists.Root != nil {
		walkNodes(*doc.Playlists.Root, "", &groupings)
	}

	return tracks, groupings, nil
}

// walkNodes recursively walks the playlist node tree. Type "0" is a folder,
// Type "1" a playlist.
func walkNodes(node xmlPlaylistNode, parentPath string, groupings *[]Grouping) {
	switch node.Type {
	case "0":
		folderPath := joinPath(parentPath, node.Name)
		if node.Name == "ROOT" {
			folderPath = ""
		}
		for _, child := range node.Nodes {
			walkNodes(child, folderPath, groupings)
		}
	case "1":
		ids := make([]string, 0, len(node.Tracks))
		for _, t := range node.Tracks {
			if t.Key != "" {
				ids = append(ids, t.Key)
			}
		}
		*groupings = append(*groupings, Grouping{
			Name:     node.Name,
			Path:     joinPath(parentPath, node.Name),
			TrackIDs: ids,
		})
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// ValidateXML checks that a path points at a readable Rekordbox export with the
// expected COLLECTION/PLAYLISTS structure. Returns a human-readable reason on failure.
func ValidateXML(path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Sprintf("File not found: %s", path)
	}
	if info.IsDir() {
		return false, fmt.Sprintf("Not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("Unable to read file: %v", err)
	}

	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Sprintf("Invalid XML: %v", err)
	}

	if len(doc.Collection.Tracks) == 0 && doc.Playlists.Root == nil {
		return false, "XML parsed, but missing Rekordbox COLLECTION/PLAYLISTS nodes"
	}
	return true, ""
}
