// Package main is the command-line driver for the MusicFlow core.
//
// It builds the application the same way a front end would and calls the
// catalog, library and settings operations directly.
//
// Build:
//
//	go build -o build/musicflow ./cmd/musicflow
//
// Run:
//
//	JAMENDO_CLIENT_ID=... ./build/musicflow featured
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/musicflow/musicflow/internal/adapter/media"
	"github.com/musicflow/musicflow/internal/app"
	"github.com/musicflow/musicflow/internal/config"
	"github.com/musicflow/musicflow/internal/domain"
)

var (
	cli        = kingpin.New("musicflow", "MusicFlow music library and catalog client")
	configPath = cli.Flag("config", "Path to a YAML config file").Short('c').Envar("MUSICFLOW_CONFIG").String()
	inMemory   = cli.Flag("memory", "Use an in-memory store (nothing is saved)").Bool()
	logLevel   = cli.Flag("log-level", "Log level (trace, debug, info, warn, error)").String()

	// catalog commands
	searchCmd   = cli.Command("search", "Search the catalog for tracks")
	searchQuery = searchCmd.Arg("query", "Search text").Required().String()
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("20").Int()

	featuredCmd   = cli.Command("featured", "List popular tracks")
	featuredLimit = featuredCmd.Flag("limit", "Maximum results").Default("20").Int()

	genreCmd   = cli.Command("genre", "List tracks tagged with a genre")
	genreName  = genreCmd.Arg("genre", "Genre tag").Required().String()
	genreLimit = genreCmd.Flag("limit", "Maximum results").Default("20").Int()

	// library commands
	uploadCmd  = cli.Command("upload", "Upload a local audio file")
	uploadPath = uploadCmd.Arg("file", "Audio file (mp3, wav, ogg, aac, m4a)").Required().ExistingFile()

	downloadCmd     = cli.Command("download", "Download a catalog track for offline playback")
	downloadTrackID = downloadCmd.Arg("track-id", "Catalog track ID").Required().String()

	libraryCmd = cli.Command("library", "List uploaded and downloaded tracks")

	playlistsCmd = cli.Command("playlists", "List playlists")

	playlistCmd           = cli.Command("playlist", "Manage playlists")
	playlistCreateCmd     = playlistCmd.Command("create", "Create a playlist")
	playlistCreateName    = playlistCreateCmd.Arg("name", "Playlist name").Required().String()
	playlistCreateDesc    = playlistCreateCmd.Flag("description", "Playlist description").String()
	playlistAddCmd        = playlistCmd.Command("add", "Add a track to a playlist")
	playlistAddID         = playlistAddCmd.Arg("playlist-id", "Playlist ID").Required().String()
	playlistAddTrackID    = playlistAddCmd.Arg("track-id", "Uploaded, downloaded or catalog track ID").Required().String()
	playlistRemoveCmd     = playlistCmd.Command("remove", "Remove a track from a playlist")
	playlistRemoveID      = playlistRemoveCmd.Arg("playlist-id", "Playlist ID").Required().String()
	playlistRemoveTrackID = playlistRemoveCmd.Arg("track-id", "Track ID").Required().String()
	playlistDeleteCmd     = playlistCmd.Command("delete", "Delete a playlist")
	playlistDeleteID      = playlistDeleteCmd.Arg("playlist-id", "Playlist ID").Required().String()

	// settings command
	settingsCmd     = cli.Command("settings", "Show or change settings")
	settingsTheme   = settingsCmd.Flag("theme", "Theme mode (light, dark)").Enum("light", "dark")
	settingsAccent  = settingsCmd.Flag("accent", "Accent color (#RRGGBB)").String()
	settingsQuality = settingsCmd.Flag("quality", "Audio quality (low, medium, high)").Enum("low", "medium", "high")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cli.Version(app.ReadBuildInfo().String())
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) (err error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *inMemory {
		cfg.Storage.Memory = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	} else if os.Getenv("MUSICFLOW_LOG_LEVEL") == "" {
		cfg.Log.Level = "warn"
	}

	application, err := app.NewApplication(ctx, app.Options{Config: cfg})
	if err != nil {
		return errors.Wrap(err, "failed to start")
	}
	defer func() {
		if shutdownErr := application.Shutdown(); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	switch command {
	case searchCmd.FullCommand():
		return printCatalog(application.Catalog().SearchTracks(ctx, *searchQuery, *searchLimit))
	case featuredCmd.FullCommand():
		return printCatalog(application.Catalog().FeaturedTracks(ctx, *featuredLimit))
	case genreCmd.FullCommand():
		return printCatalog(application.Catalog().TracksByGenre(ctx, *genreName, *genreLimit))
	case uploadCmd.FullCommand():
		return upload(ctx, application, *uploadPath)
	case downloadCmd.FullCommand():
		return download(ctx, application, *downloadTrackID)
	case libraryCmd.FullCommand():
		fmt.Println("Uploaded:")
		printTracks(application.Library().UploadedTracks())
		fmt.Println("\nDownloaded:")
		printTracks(application.Library().DownloadedTracks())
		return nil
	case playlistsCmd.FullCommand():
		printPlaylists(application.Library().Playlists())
		return nil
	case playlistCreateCmd.FullCommand():
		p, err := application.Library().CreatePlaylist(ctx, *playlistCreateName, *playlistCreateDesc)
		if err != nil {
			return err
		}
		fmt.Printf("Created playlist %q (%s)\n", p.Name, p.ID)
		return nil
	case playlistAddCmd.FullCommand():
		return addToPlaylist(ctx, application, *playlistAddID, *playlistAddTrackID)
	case playlistRemoveCmd.FullCommand():
		return application.Library().RemoveTrackFromPlaylist(ctx, *playlistRemoveID, *playlistRemoveTrackID)
	case playlistDeleteCmd.FullCommand():
		return application.Library().DeletePlaylist(ctx, *playlistDeleteID)
	case settingsCmd.FullCommand():
		return settings(ctx, application)
	}
	return nil
}

func upload(ctx context.Context, application *app.Application, path string) error {
	file, err := media.OpenLocalFile(path)
	if err != nil {
		return err
	}
	track, err := application.Library().UploadTrack(ctx, file)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %q by %s (%s, %s) as %s\n",
		track.Title, track.Artist, domain.FormatDuration(track.Duration),
		domain.FormatFileSize(file.Size()), track.ID)
	return nil
}

func download(ctx context.Context, application *app.Application, trackID string) error {
	if application.Library().IsTrackDownloaded(trackID) {
		fmt.Println("Already downloaded")
		return nil
	}
	track, err := application.Catalog().Track(ctx, trackID)
	if err != nil {
		return err
	}

	fmt.Printf("Downloading %s - %s\n", track.Artist, track.Title)
	_, err = application.Library().DownloadTrack(ctx, track, func(p domain.DownloadProgress) {
		if p.Status == domain.DownloadDownloading {
			fmt.Printf("\r  %3.0f%%", p.Progress)
		}
	})
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Println("Done")
	return nil
}

// addToPlaylist resolves the track from the library first, then the catalog.
func addToPlaylist(ctx context.Context, application *app.Application, playlistID, trackID string) error {
	if _, ok := application.Library().Playlist(playlistID); !ok {
		return errors.Newf("playlist %s not found", playlistID)
	}

	var track *domain.Track
	for _, list := range [][]domain.Track{application.Library().UploadedTracks(), application.Library().DownloadedTracks()} {
		if i := slices.IndexFunc(list, func(t domain.Track) bool { return t.ID == trackID }); i >= 0 {
			track = &list[i]
			break
		}
	}
	if track == nil {
		t, err := application.Catalog().Track(ctx, trackID)
		if err != nil {
			return err
		}
		track = &t
	}

	if err := application.Library().AddTrackToPlaylist(ctx, playlistID, *track); err != nil {
		return err
	}
	fmt.Printf("Added %q\n", track.Title)
	return nil
}

func settings(ctx context.Context, application *app.Application) error {
	svc := application.Settings()
	current, err := svc.Get(ctx)
	if err != nil {
		return err
	}

	if *settingsTheme != "" || *settingsAccent != "" {
		theme := current.Theme
		if *settingsTheme != "" {
			theme.Mode = domain.ThemeMode(*settingsTheme)
		}
		if *settingsAccent != "" {
			theme.AccentColor = *settingsAccent
		}
		if err := svc.SetTheme(ctx, theme); err != nil {
			return err
		}
	}
	if *settingsQuality != "" {
		if err := svc.SetQuality(ctx, domain.AudioQuality(*settingsQuality)); err != nil {
			return err
		}
	}

	if current, err = svc.Get(ctx); err != nil {
		return err
	}
	fmt.Printf("theme:   %s (%s)\n", current.Theme.Mode, current.Theme.AccentColor)
	fmt.Printf("volume:  %.0f%%\n", current.Volume*100)
	fmt.Printf("quality: %s\n", current.Quality)
	return nil
}

func printCatalog(tracks []domain.Track, err error) error {
	if err != nil {
		return err
	}
	printTracks(tracks)
	return nil
}

func printTracks(tracks []domain.Track) {
	if len(tracks) == 0 {
		fmt.Println("  (none)")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tARTIST\tALBUM\tLENGTH")
	for _, t := range tracks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Artist, t.Album, domain.FormatDuration(t.Duration))
	}
	_ = w.Flush()
}

func printPlaylists(playlists []domain.Playlist) {
	if len(playlists) == 0 {
		fmt.Println("No playlists")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTRACKS\tLENGTH\tUPDATED")
	for _, p := range playlists {
		var total float64
		for _, t := range p.Tracks {
			total += t.Duration
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, len(p.Tracks), domain.FormatDuration(total), p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
